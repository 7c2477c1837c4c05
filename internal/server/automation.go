package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	automationdomain "github.com/smallbiznis/replyflow/internal/automation/domain"
)

type compileAutomationRequest struct {
	Prompt string `json:"prompt"`
}

type addTriggerRequest struct {
	Type string `json:"type"`
}

type addKeywordRequest struct {
	Word string `json:"word"`
}

type updateListenerRequest struct {
	Kind         string `json:"kind"`
	Prompt       string `json:"prompt"`
	CommentReply string `json:"comment_reply"`
}

type setPriorityRequest struct {
	Priority *int `json:"priority"`
}

type addPostScopeRequest struct {
	PostID string `json:"post_id"`
}

func (s *Server) CompileAutomation(c *gin.Context) {
	var req compileAutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	spec, err := s.automationSvc.Preview(c.Request.Context(), automationdomain.CompileRequest{Prompt: req.Prompt})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": spec})
}

func (s *Server) CreateAutomation(c *gin.Context) {
	var req compileAutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	automation, err := s.automationSvc.Create(c.Request.Context(), automationdomain.CompileRequest{Prompt: req.Prompt})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": automation})
}

func (s *Server) ListAutomations(c *gin.Context) {
	automations, err := s.automationSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": automations})
}

func (s *Server) GetAutomation(c *gin.Context) {
	automation, err := s.automationSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": automation})
}

func (s *Server) DeleteAutomation(c *gin.Context) {
	if err := s.automationSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddTrigger(c *gin.Context) {
	var req addTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	automation, err := s.automationSvc.AddTrigger(c.Request.Context(), c.Param("id"), automationdomain.TriggerType(req.Type))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": automation})
}

func (s *Server) AddKeyword(c *gin.Context) {
	var req addKeywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	automation, err := s.automationSvc.AddKeyword(c.Request.Context(), c.Param("id"), req.Word)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": automation})
}

func (s *Server) RemoveKeyword(c *gin.Context) {
	automation, err := s.automationSvc.RemoveKeyword(c.Request.Context(), c.Param("id"), c.Param("keyword"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": automation})
}

func (s *Server) UpdateListener(c *gin.Context) {
	var req updateListenerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	automation, err := s.automationSvc.UpdateListener(c.Request.Context(), c.Param("id"), automationdomain.UpdateListenerRequest{
		Kind:         automationdomain.ListenerKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		Prompt:       req.Prompt,
		CommentReply: req.CommentReply,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": automation})
}

func (s *Server) SetPriority(c *gin.Context) {
	var req setPriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Priority == nil {
		AbortWithError(c, newValidationError("priority", "required", "priority is required"))
		return
	}

	automation, err := s.automationSvc.SetPriority(c.Request.Context(), c.Param("id"), *req.Priority)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": automation})
}

func (s *Server) AddPostScope(c *gin.Context) {
	var req addPostScopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	automation, err := s.automationSvc.AddPostScope(c.Request.Context(), c.Param("id"), req.PostID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": automation})
}
