package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	apperrors "github.com/pittpv/mon-far-app/internal/errors"
)

// Frame lifecycle events delivered by the client's notification relay.
const (
	eventFrameAdded           = "frame_added"
	eventNotificationsEnabled = "notifications_enabled"
	eventFrameRemoved         = "frame_removed"
	eventNotificationsOff     = "notifications_disabled"
)

type notificationDetails struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type webhookRequest struct {
	FID                 int64                `json:"fid"`
	Event               string               `json:"event"`
	NotificationDetails *notificationDetails `json:"notificationDetails"`
}

func (s *Server) handleWebhook(c echo.Context) error {
	var req webhookRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithField("cause", err.Error())
	}

	if req.FID <= 0 {
		return apperrors.ValidationError("fid must be a positive integer").WithField("fid", req.FID)
	}
	c.Set("fid", req.FID)

	ctx := c.Request().Context()

	switch req.Event {
	case eventFrameAdded, eventNotificationsEnabled:
		details := req.NotificationDetails
		if details == nil || details.Token == "" || details.URL == "" {
			// The relay sends frame_added without notification details
			// when the user declined notifications. Nothing to store.
			slog.DebugContext(ctx, "Subscription event without delivery target", "fid", req.FID, "event", req.Event)
			break
		}
		if err := validateEndpoint(details.URL); err != nil {
			return err
		}
		if err := s.cooldowns.SaveSubscription(ctx, req.FID, details.Token, details.URL); err != nil {
			return apperrors.InternalError("failed to save subscription", err).WithField("fid", req.FID)
		}

	case eventFrameRemoved, eventNotificationsOff:
		if err := s.cooldowns.RemoveSubscription(ctx, req.FID); err != nil {
			return apperrors.InternalError("failed to remove subscription", err).WithField("fid", req.FID)
		}

	default:
		// Unknown events are acknowledged, not rejected, so the relay
		// does not retry them forever.
		slog.InfoContext(ctx, "Ignoring unknown webhook event", "fid", req.FID, "event", req.Event)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.ValidationError("notificationDetails.url must be an absolute http(s) URL").
			WithField("url", raw)
	}
	return nil
}
