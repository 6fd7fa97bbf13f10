package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	assignmentdomain "github.com/smallbiznis/fieldops/internal/assignment/domain"
	"github.com/smallbiznis/fieldops/internal/observability/logger"
	"go.uber.org/zap"
)

func (s *Server) CreateAssignment(c *gin.Context) {
	var req assignmentdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	principal, _ := principalFromContext(c)
	req.AssignedBy = principal.UserID

	resp, err := s.assignmentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, resp, "assignment created")
}

func (s *Server) BulkAssign(c *gin.Context) {
	var req assignmentdomain.BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	principal, _ := principalFromContext(c)
	req.AssignedBy = principal.UserID

	ctx := c.Request.Context()
	token, ok, err := s.limiter.LockBulkAssign(ctx, principal.UserID)
	if err != nil {
		logger.FromContext(ctx).Warn("bulk assign lock failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	if !ok {
		AbortWithError(c, assignmentdomain.ErrBulkAssignInProgress)
		return
	}
	defer func() {
		if err := s.limiter.ReleaseBulkAssign(ctx, principal.UserID, token); err != nil {
			logger.FromContext(ctx).Warn("bulk assign unlock failed", zap.Error(err))
		}
	}()

	resp, err := s.assignmentSvc.BulkAssign(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, resp, "bulk assignment completed")
}

func (s *Server) ListAssignments(c *gin.Context) {
	var query struct {
		Status  string `form:"status"`
		AgentID string `form:"agent_id"`
		MeterID string `form:"meter_id"`
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

	resp, err := s.assignmentSvc.List(c.Request.Context(), assignmentdomain.ListRequest{
		Pagination: page,
		Status:     strings.TrimSpace(query.Status),
		AgentID:    strings.TrimSpace(query.AgentID),
		MeterID:    strings.TrimSpace(query.MeterID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) ListOwnAssignments(c *gin.Context) {
	agent, ok := agentFromContext(c)
	if !ok {
		AbortWithError(c, ErrAgentProfileAbsent)
		return
	}

	page, err := s.bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.assignmentSvc.ListByAgent(c.Request.Context(), agent.ID, assignmentdomain.ListRequest{
		Pagination: page,
		Status:     strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) GetAssignmentByID(c *gin.Context) {
	resp, err := s.assignmentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// agents only see their own work
	if agent, ok := agentFromContext(c); ok && resp.AgentID != agent.ID {
		AbortWithError(c, assignmentdomain.ErrNotFound)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) UpdateAssignment(c *gin.Context) {
	var req assignmentdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	resp, err := s.assignmentSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "assignment updated")
}

func (s *Server) UpdateOwnAssignmentStatus(c *gin.Context) {
	agent, ok := agentFromContext(c)
	if !ok {
		AbortWithError(c, ErrAgentProfileAbsent)
		return
	}

	var req assignmentdomain.OwnStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	resp, err := s.assignmentSvc.UpdateOwnStatus(c.Request.Context(), agent.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "assignment status updated")
}
