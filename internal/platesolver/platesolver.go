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

// Package platesolver wraps an external astrometric plate-solving binary
// (ASTAP by default), shelling out and verifying the WCS cards it writes
// back into the FITS header.
package platesolver

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/278261631/local-kats-sub000/internal/fitsimage"
)

// Solver plate-solves a FITS file in place, writing WCS header cards.
type Solver interface {
	IsAvailable() bool
	Solve(ctx context.Context, fitsPath string, timeout time.Duration) error
}

// ASTAPSolver shells out to the astap command-line binary.
type ASTAPSolver struct {
	BinaryName string // defaults to "astap" when empty
	ExtraArgs  []string
}

// NewASTAPSolver returns a solver invoking the "astap" binary on PATH.
func NewASTAPSolver() *ASTAPSolver {
	return &ASTAPSolver{BinaryName: "astap"}
}

func (s *ASTAPSolver) binary() string {
	if s.BinaryName != "" {
		return s.BinaryName
	}
	return "astap"
}

// IsAvailable reports whether the solver binary is on PATH.
func (s *ASTAPSolver) IsAvailable() bool {
	return commandExists(s.binary())
}

// Solve invokes the solver on fitsPath, then verifies the file carries a
// usable WCS afterward.
func (s *ASTAPSolver) Solve(ctx context.Context, fitsPath string, timeout time.Duration) error {
	solveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"-f", fitsPath, "-update"}, s.ExtraArgs...)
	cmd := exec.CommandContext(solveCtx, s.binary(), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("platesolver: %s failed: %w (output: %s)", s.binary(), err, out)
	}

	img, err := fitsimage.Load(fitsPath)
	if err != nil {
		return fmt.Errorf("platesolver: re-reading solved file: %w", err)
	}
	if !img.Header.HasWCS() {
		return fmt.Errorf("platesolver: %s completed but %s still carries no WCS", s.binary(), fitsPath)
	}
	return nil
}

// commandExists reports whether name resolves on PATH.
func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// NoOpSolver always reports unavailable, used when --no-astap is set or no
// solver binary can be found; callers fall back to rigid-first alignment.
type NoOpSolver struct{}

func (NoOpSolver) IsAvailable() bool { return false }
func (NoOpSolver) Solve(ctx context.Context, fitsPath string, timeout time.Duration) error {
	return fmt.Errorf("platesolver: disabled")
}
