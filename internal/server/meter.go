package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
)

type listMetersQuery struct {
	Status    string `form:"status"`
	MeterType string `form:"meter_type"`
	Priority  string `form:"priority"`
	Search    string `form:"search"`
	Assigned  string `form:"assigned"`
}

func (s *Server) CreateMeter(c *gin.Context) {
	var req meterdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.meterSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, resp, "meter created")
}

func (s *Server) ListMeters(c *gin.Context) {
	req, ok := s.bindMeterList(c)
	if !ok {
		return
	}

	resp, err := s.meterSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) ListUnassignedMeters(c *gin.Context) {
	req, ok := s.bindMeterList(c)
	if !ok {
		return
	}

	resp, err := s.meterSvc.ListUnassigned(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) bindMeterList(c *gin.Context) (meterdomain.ListRequest, bool) {
	var query listMetersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return meterdomain.ListRequest{}, false
	}
	page, err := s.bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return meterdomain.ListRequest{}, false
	}
	assigned, err := parseOptionalBool(query.Assigned)
	if err != nil {
		AbortWithError(c, newValidationError("assigned", "must be a boolean"))
		return meterdomain.ListRequest{}, false
	}

	return meterdomain.ListRequest{
		Pagination: page,
		Status:     strings.TrimSpace(query.Status),
		MeterType:  strings.TrimSpace(query.MeterType),
		Priority:   strings.TrimSpace(query.Priority),
		Search:     strings.TrimSpace(query.Search),
		Assigned:   assigned,
	}, true
}

func (s *Server) GetMeterByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.meterSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "")
}

func (s *Server) UpdateMeter(c *gin.Context) {
	var req meterdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))
	req.Address = trimStringPtr(req.Address)
	req.OwnerName = trimStringPtr(req.OwnerName)

	resp, err := s.meterSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, resp, "meter updated")
}

func (s *Server) DeleteMeter(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := s.meterSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, nil, "meter deleted")
}
