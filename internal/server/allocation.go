package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	allocationdomain "github.com/tallyops/meridian/internal/allocation/domain"
)

func (s *Server) AllocateUnit(c *gin.Context) {
	var req allocationdomain.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	alloc, err := s.allocationSvc.Allocate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, alloc)
}

func (s *Server) AllocateBatch(c *gin.Context) {
	var req allocationdomain.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}
	if len(req.Units) == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.allocationSvc.AllocateBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) GetAllocationByUnitID(c *gin.Context) {
	alloc, err := s.allocationSvc.GetByUnitID(c.Request.Context(), c.Param("unitId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, alloc)
}

func (s *Server) ListAllocations(c *gin.Context) {
	var req allocationdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.allocationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
