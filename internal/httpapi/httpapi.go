// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package httpapi serves the pipeline's status endpoint and a websocket feed
// of live log lines, grounded on the teacher's gin-based REST server.
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/278261631/local-kats-sub000/internal/logging"
)

// StatusProvider supplies the current pipeline snapshot on demand.
type StatusProvider interface {
	Status() Status
}

// Status is the JSON shape returned by GET /api/v1/status.
type Status struct {
	Stage          string    `json:"stage"`
	FilesQueued    int       `json:"files_queued"`
	FilesCompleted int       `json:"files_completed"`
	FilesFailed    int       `json:"files_failed"`
	Paused         bool      `json:"paused"`
	StartedAt      time.Time `json:"started_at"`
}

// Server wraps a gin engine exposing the status and log-stream endpoints.
type Server struct {
	engine   *gin.Engine
	provider StatusProvider
	ring     *logging.RingSink
	upgrader websocket.Upgrader
}

// NewServer builds a server backed by provider for status snapshots and ring
// for the live log tail served over websocket.
func NewServer(provider StatusProvider, ring *logging.RingSink) *Server {
	s := &Server{
		engine:   gin.Default(),
		provider: provider,
		ring:     ring,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	api := s.engine.Group("/api/v1")
	api.GET("/status", s.getStatus)
	api.GET("/ws", s.getLogStream)
	return s
}

// Run listens and serves on addr (e.g. ":8080").
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider.Status())
}

func (s *Server) getLogStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sent := make(map[int]struct{})
	for i, e := range s.ring.Snapshot() {
		sent[i] = struct{}{}
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var mu sync.Mutex
	for range ticker.C {
		mu.Lock()
		entries := s.ring.Snapshot()
		for i, e := range entries {
			if _, ok := sent[i]; ok {
				continue
			}
			sent[i] = struct{}{}
			if err := conn.WriteJSON(e); err != nil {
				mu.Unlock()
				return
			}
		}
		mu.Unlock()
	}
}
