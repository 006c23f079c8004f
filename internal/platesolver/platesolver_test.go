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

package platesolver

import (
	"context"
	"testing"
	"time"
)

func TestNoOpSolverIsAlwaysUnavailable(t *testing.T) {
	var s NoOpSolver
	if s.IsAvailable() {
		t.Error("NoOpSolver.IsAvailable() should be false")
	}
	if err := s.Solve(context.Background(), "obs.fits", time.Second); err == nil {
		t.Error("NoOpSolver.Solve() should always return an error")
	}
}

func TestNewASTAPSolverDefaultsBinaryName(t *testing.T) {
	s := NewASTAPSolver()
	if s.binary() != "astap" {
		t.Errorf("binary() = %q, want astap", s.binary())
	}
}

func TestASTAPSolverHonorsCustomBinaryName(t *testing.T) {
	s := &ASTAPSolver{BinaryName: "astap-custom"}
	if s.binary() != "astap-custom" {
		t.Errorf("binary() = %q, want astap-custom", s.binary())
	}
}

func TestASTAPSolverIsAvailableReflectsPATH(t *testing.T) {
	s := &ASTAPSolver{BinaryName: "katsdiff-definitely-not-a-real-binary"}
	if s.IsAvailable() {
		t.Error("IsAvailable() should be false for a binary that cannot exist on PATH")
	}
}
