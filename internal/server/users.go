package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/replyflow/internal/userctx"
)

type setUserPlanRequest struct {
	Plan string `json:"plan"`
}

// SetUserPlan is called by the billing collaborator whenever a subscription
// changes. The user row is created on first sight.
func (s *Server) SetUserPlan(c *gin.Context) {
	userID, ok := userctx.ParseUserID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "user id is malformed"))
		return
	}

	var req setUserPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.userSvc.SetPlan(c.Request.Context(), userID, req.Plan)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}
