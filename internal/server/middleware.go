package server

import (
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/replyflow/internal/observability/context"
	"github.com/smallbiznis/replyflow/internal/userctx"
)

const (
	// HeaderUserID names the account owner; authentication happens upstream.
	HeaderUserID     = "X-User-Id"
	contextUserIDKey = "user_id"
)

// UserContext moves the caller identity from X-User-Id into the request
// context. Loggers built from the context pick it up.
func (s *Server) UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userctx.ParseUserID(c.GetHeader(HeaderUserID))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := userctx.WithUserID(c.Request.Context(), userID)
		ctx = obscontext.WithUserID(ctx, userID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextUserIDKey, userID.String())
		c.Next()
	}
}
