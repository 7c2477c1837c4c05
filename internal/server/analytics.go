package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetDailyActivity(c *gin.Context) {
	days, err := parseDays(c.Query("days"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	points, err := s.analyticsSvc.DailyActivity(c.Request.Context(), days)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": points})
}

func (s *Server) GetGlobalStats(c *gin.Context) {
	stats, err := s.analyticsSvc.GlobalStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) GetPerAutomationStats(c *gin.Context) {
	stats, err := s.analyticsSvc.PerAutomationStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
