package server

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pittpv/mon-far-app/internal/domain"
	apperrors "github.com/pittpv/mon-far-app/internal/errors"
)

const (
	// earliestEventTime rejects timestamps from before any supported
	// chain existed (2015-01-01 UTC).
	earliestEventTime = 1420070400

	// eventClockSkew tolerates small clock drift on future timestamps.
	eventClockSkew = 10 * time.Minute

	maxNetworkLength = 32
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type voteRequest struct {
	FID            int64  `json:"fid"`
	TokenAddress   string `json:"tokenAddress"`
	Network        string `json:"network"`
	Timestamp      int64  `json:"timestamp"`
	BlockTimestamp int64  `json:"blockTimestamp"`
}

func (s *Server) handleVote(c echo.Context) error {
	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithField("cause", err.Error())
	}

	if req.FID <= 0 {
		return apperrors.ValidationError("fid must be a positive integer").WithField("fid", req.FID)
	}
	c.Set("fid", req.FID)

	if !addressPattern.MatchString(req.TokenAddress) {
		return apperrors.ValidationError("tokenAddress must be 0x followed by 40 hex characters").
			WithField("tokenAddress", req.TokenAddress)
	}
	if req.Network == "" {
		return apperrors.ValidationError("network is required")
	}
	if len(req.Network) > maxNetworkLength {
		return apperrors.ValidationError("network must be at most 32 characters").
			WithField("network", req.Network)
	}

	if err := s.validateEventTime("timestamp", req.Timestamp); err != nil {
		return err
	}
	if req.BlockTimestamp != 0 {
		if err := s.validateEventTime("blockTimestamp", req.BlockTimestamp); err != nil {
			return err
		}
	}

	event := domain.VoteEvent{
		FID:          req.FID,
		TokenAddress: req.TokenAddress,
		Network:      req.Network,
		OccurredAt:   req.Timestamp,
		BlockTime:    req.BlockTimestamp,
	}
	if err := s.cooldowns.RecordVote(c.Request().Context(), event); err != nil {
		return apperrors.InternalError("failed to record vote", err).WithField("fid", req.FID)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) validateEventTime(field string, value int64) error {
	if value < earliestEventTime {
		return apperrors.ValidationError(field + " is implausibly old").WithField(field, value)
	}
	if latest := s.clock.Now().Add(eventClockSkew).Unix(); value > latest {
		return apperrors.ValidationError(field + " is in the future").WithField(field, value)
	}
	return nil
}
