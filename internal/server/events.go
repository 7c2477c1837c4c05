package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	automationdomain "github.com/smallbiznis/replyflow/internal/automation/domain"
	dispatchdomain "github.com/smallbiznis/replyflow/internal/dispatch/domain"
	"github.com/smallbiznis/replyflow/internal/userctx"
)

type dispatchEventRequest struct {
	EventID     string                       `json:"event_id"`
	UserID      string                       `json:"user_id"`
	TriggerType string                       `json:"trigger_type"`
	Text        string                       `json:"text"`
	PostID      string                       `json:"post_id"`
	SenderID    string                       `json:"sender_id"`
	OccurredAt  *time.Time                   `json:"occurred_at"`
	Context     []dispatchdomain.ContextTurn `json:"context"`
}

// DispatchEvent runs one inbound comment or DM through the automations of
// its owner. Unmatched events are a normal 200 answer.
func (s *Server) DispatchEvent(c *gin.Context) {
	var req dispatchEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, ok := userctx.ParseUserID(req.UserID)
	if !ok {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "user_id is required"))
		return
	}

	event := dispatchdomain.InboundEvent{
		EventID:     req.EventID,
		UserID:      userID,
		TriggerType: automationdomain.TriggerType(strings.ToUpper(strings.TrimSpace(req.TriggerType))),
		Text:        req.Text,
		PostID:      strings.TrimSpace(req.PostID),
		SenderID:    req.SenderID,
		Context:     req.Context,
	}
	if req.OccurredAt != nil {
		event.OccurredAt = *req.OccurredAt
	}

	result, err := s.dispatchSvc.Dispatch(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("dispatch_outcome", dispatchOutcome(result))
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func dispatchOutcome(result dispatchdomain.DispatchResult) string {
	switch {
	case result.Duplicate:
		return dispatchdomain.ReasonDuplicate
	case result.Matched:
		return "matched"
	case result.Reason != "":
		return result.Reason
	default:
		return dispatchdomain.ReasonNoMatch
	}
}
