package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
)

func (s *Server) CreateAgent(c *gin.Context) {
	var req agentdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.agentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, resp, "agent created")
}

func (s *Server) ListAgents(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	page, err := s.bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.agentSvc.List(c.Request.Context(), agentdomain.ListRequest{
		Pagination: page,
		Status:     strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) ListAvailableAgents(c *gin.Context) {
	resp, err := s.agentSvc.ListAvailable(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) GetAgentByID(c *gin.Context) {
	resp, err := s.agentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) GetAgentStats(c *gin.Context) {
	resp, err := s.agentSvc.Stats(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) UpdateAgent(c *gin.Context) {
	var req agentdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))
	req.DisplayName = trimStringPtr(req.DisplayName)

	resp, err := s.agentSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "agent updated")
}

func (s *Server) GetOwnAgent(c *gin.Context) {
	agent, ok := agentFromContext(c)
	if !ok {
		AbortWithError(c, ErrAgentProfileAbsent)
		return
	}

	respondOK(c, agent, "")
}

func (s *Server) UpdateOwnAgentStatus(c *gin.Context) {
	agent, ok := agentFromContext(c)
	if !ok {
		AbortWithError(c, ErrAgentProfileAbsent)
		return
	}

	var req agentdomain.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.agentSvc.UpdateStatus(c.Request.Context(), agent.ID, strings.TrimSpace(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "status updated")
}

func (s *Server) UpdateOwnAgentLocation(c *gin.Context) {
	agent, ok := agentFromContext(c)
	if !ok {
		AbortWithError(c, ErrAgentProfileAbsent)
		return
	}

	var req agentdomain.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.agentSvc.UpdateLocation(c.Request.Context(), agent.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "location updated")
}
