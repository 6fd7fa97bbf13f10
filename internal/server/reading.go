package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fieldops/internal/auth"
	readingdomain "github.com/smallbiznis/fieldops/internal/reading/domain"
)

func (s *Server) SubmitReading(c *gin.Context) {
	var req readingdomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// readings taken by an agent are attributed to their profile
	if principal, _ := principalFromContext(c); principal.Role == auth.RoleAgent {
		agent, err := s.resolveAgent(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.AgentID = agent.ID.String()
	}

	resp, err := s.readingSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, resp, "reading recorded")
}

func (s *Server) VerifyReading(c *gin.Context) {
	principal, _ := principalFromContext(c)

	resp, err := s.readingSvc.Verify(c.Request.Context(), readingdomain.VerifyRequest{
		ID:         strings.TrimSpace(c.Param("id")),
		VerifierID: principal.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "reading verified")
}

func (s *Server) ListReadings(c *gin.Context) {
	var query struct {
		MeterID  string `form:"meter_id"`
		AgentID  string `form:"agent_id"`
		Verified *bool  `form:"verified"`
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

	resp, err := s.readingSvc.List(c.Request.Context(), readingdomain.ListRequest{
		Pagination: page,
		MeterID:    strings.TrimSpace(query.MeterID),
		AgentID:    strings.TrimSpace(query.AgentID),
		Verified:   query.Verified,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) GetReadingByID(c *gin.Context) {
	resp, err := s.readingSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) UpdateReading(c *gin.Context) {
	var req readingdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	principal, _ := principalFromContext(c)
	req.ID = strings.TrimSpace(c.Param("id"))
	req.ActorID = principal.UserID

	resp, err := s.readingSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "reading updated")
}

func (s *Server) ListMeterReadings(c *gin.Context) {
	page, err := s.bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.readingSvc.ListByMeter(c.Request.Context(), readingdomain.ListRequest{
		Pagination: page,
		MeterID:    strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}
