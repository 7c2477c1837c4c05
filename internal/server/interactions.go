package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	interactiondomain "github.com/smallbiznis/replyflow/internal/interaction/domain"
	"github.com/smallbiznis/replyflow/internal/interaction/liveevents"
	"github.com/smallbiznis/replyflow/internal/observability/logger"
	"github.com/smallbiznis/replyflow/internal/userctx"
	"go.uber.org/zap"
)

const liveHeartbeatInterval = 15 * time.Second

func (s *Server) ListInteractions(c *gin.Context) {
	var req interactiondomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be an integer"))
		return
	}

	resp, err := s.interactionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StreamInteractions pushes the caller's newly appended interaction records
// as Server-Sent Events, starting with the replay buffer.
func (s *Server) StreamInteractions(c *gin.Context) {
	if s.liveEvents == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	userID, ok := userctx.UserIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	subscription, backlog, err := s.liveEvents.Subscribe(userID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer subscription.Close()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	log := logger.WithContext(c.Request.Context(), s.log)
	log.Debug("live feed subscriber connected", zap.Int("backlog", len(backlog)))
	defer log.Debug("live feed subscriber disconnected")

	s.httpMetrics.LiveSubscriberAdded()
	defer s.httpMetrics.LiveSubscriberRemoved()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	for _, event := range backlog {
		if err := writeLiveEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(liveHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeLiveEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeLiveEvent(w io.Writer, event liveevents.LiveEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: interaction\ndata: %s\n\n", data)
	return err
}
