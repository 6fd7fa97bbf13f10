package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	approvaldomain "github.com/smallbiznis/fieldops/internal/approval/domain"
)

type reviewRequest struct {
	ReviewNotes string `json:"review_notes"`
}

func (s *Server) SubmitApproval(c *gin.Context) {
	agent, ok := agentFromContext(c)
	if !ok {
		AbortWithError(c, ErrAgentProfileAbsent)
		return
	}

	var req approvaldomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.AgentID = agent.ID.String()

	resp, err := s.approvalSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, resp, "approval request submitted")
}

func (s *Server) ListApprovals(c *gin.Context) {
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

	resp, err := s.approvalSvc.List(c.Request.Context(), approvaldomain.ListRequest{
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

func (s *Server) ListPendingApprovals(c *gin.Context) {
	resp, err := s.approvalSvc.ListPending(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) GetApprovalByID(c *gin.Context) {
	resp, err := s.approvalSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) ApproveRequest(c *gin.Context) {
	s.review(c, string(approvaldomain.OutcomeApprove), "approval request approved")
}

func (s *Server) RejectRequest(c *gin.Context) {
	s.review(c, string(approvaldomain.OutcomeReject), "approval request rejected")
}

func (s *Server) review(c *gin.Context, outcome string, message string) {
	var body reviewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	principal, _ := principalFromContext(c)

	resp, err := s.approvalSvc.Review(c.Request.Context(), approvaldomain.ReviewRequest{
		ID:          strings.TrimSpace(c.Param("id")),
		Outcome:     outcome,
		ReviewerID:  principal.UserID,
		ReviewNotes: body.ReviewNotes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, message)
}
