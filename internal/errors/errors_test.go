// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want string
	}{
		{
			name: "with underlying error",
			err: &UserError{
				Message: "Cannot connect to metadata store",
				Err:     fmt.Errorf("connection refused"),
			},
			want: "Cannot connect to metadata store: connection refused",
		},
		{
			name: "without underlying error",
			err: &UserError{
				Message: "Question must not be empty",
			},
			want: "Question must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("dial tcp: timeout")
	ue := NewInfraError("Cannot reach the vector store", "", "", underlying)

	if !errors.Is(ue, underlying) {
		t.Error("errors.Is should find the underlying error")
	}
}

func TestExitCodes(t *testing.T) {
	if got := NewUserError("bad input", "", "", nil).ExitCode; got != ExitUser {
		t.Errorf("user error exit code = %d, want %d", got, ExitUser)
	}
	if got := NewInfraError("db down", "", "", nil).ExitCode; got != ExitInfra {
		t.Errorf("infra error exit code = %d, want %d", got, ExitInfra)
	}
}

func TestUserError_Format_NoColor(t *testing.T) {
	ue := NewUserError(
		"Ingest run aborted",
		"Pending embedding queue exceeds the admission threshold",
		"Start embedding workers or raise CHESSMATE_MAX_PENDING_EMBEDDINGS",
		ErrQueueSaturated,
	)

	out := ue.Format(true)
	for _, want := range []string{"Error: Ingest run aborted", "Cause: Pending", "Fix:   Start"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestUserError_Format_OmitsEmptySections(t *testing.T) {
	ue := NewUserError("Bad PGN", "", "", nil)
	out := ue.Format(true)

	if strings.Contains(out, "Cause:") || strings.Contains(out, "Fix:") {
		t.Errorf("Format() should omit empty sections, got:\n%s", out)
	}
}

func TestSentinelClassification(t *testing.T) {
	wrapped := fmt.Errorf("ingest: %w", ErrQueueSaturated)
	if !errors.Is(wrapped, ErrQueueSaturated) {
		t.Error("wrapped ErrQueueSaturated should classify with errors.Is")
	}

	var im *IllegalMoveError
	err := fmt.Errorf("game skipped: %w", &IllegalMoveError{Game: 2, Ply: 17, SAN: "Qxh9"})
	if !errors.As(err, &im) {
		t.Fatal("errors.As should find IllegalMoveError")
	}
	if im.Ply != 17 {
		t.Errorf("Ply = %d, want 17", im.Ply)
	}
}

func TestUserError_ToJSON(t *testing.T) {
	ue := NewInfraError("Vector store unavailable", "timeout after 10s", "check QDRANT_URL", nil)
	j := ue.ToJSON()

	if j.Error != "Vector store unavailable" || j.ExitCode != ExitInfra {
		t.Errorf("unexpected JSON payload: %+v", j)
	}
}
