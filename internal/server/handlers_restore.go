package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pittpv/mon-far-app/internal/domain"
	apperrors "github.com/pittpv/mon-far-app/internal/errors"
)

type restoreResponse struct {
	RunID string `json:"run_id"`
	domain.RestoreSummary
}

// handleRestore runs a reconciliation pass on demand. Concurrent calls
// collapse onto one pass and share its summary.
func (s *Server) handleRestore(c echo.Context) error {
	ctx := c.Request().Context()
	runID := uuid.NewString()

	summary, err := s.reconciler.RestoreAll(ctx)
	if err != nil {
		return apperrors.InternalError("failed to restore timers", err).WithField("run_id", runID)
	}

	slog.InfoContext(ctx, "Manual restore finished",
		"run_id", runID, "restored", summary.Restored, "cleaned", summary.Cleaned, "errors", summary.Errors)

	if err := c.JSON(http.StatusOK, restoreResponse{RunID: runID, RestoreSummary: summary}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
