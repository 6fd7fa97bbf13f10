package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
)

type successResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

func respondOK(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, successResponse{Success: true, Data: data, Message: message})
}

func respondCreated(c *gin.Context, data any, message string) {
	c.JSON(http.StatusCreated, successResponse{Success: true, Data: data, Message: message})
}

// bindPage reads page and limit from the query and clamps them to the
// configured bounds.
func (s *Server) bindPage(c *gin.Context) (pagination.Pagination, error) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		return pagination.Pagination{}, newValidationError("pagination", "page and limit must be integers")
	}
	return p.Normalize(s.cfg.Paging.DefaultLimit, s.cfg.Paging.MaxLimit), nil
}

func trimStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
