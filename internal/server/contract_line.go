package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
)

func (s *Server) CreateContractLine(c *gin.Context) {
	var req contractlinedomain.CreateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	line, err := s.lineSvc.CreateLine(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, line)
}

func (s *Server) GetContractLine(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, contractlinedomain.ErrLineNotFound)
		return
	}

	snapshot, err := s.lineSvc.GetSnapshot(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) ListContractLines(c *gin.Context) {
	var req contractlinedomain.ListLinesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.lineSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) AssignServiceToLine(c *gin.Context) {
	var req contractlinedomain.AssignServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}
	req.ContractLineID = c.Param("id")

	assignment, err := s.lineSvc.AssignService(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, assignment)
}

func (s *Server) AttachBucketToLine(c *gin.Context) {
	var req contractlinedomain.AttachBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}
	req.ContractLineID = c.Param("id")

	overlay, err := s.lineSvc.AttachBucket(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, overlay)
}

type endLineRequest struct {
	EndDate time.Time `json:"end_date"`
}

func (s *Server) EndContractLine(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, contractlinedomain.ErrLineNotFound)
		return
	}

	var req endLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}
	if req.EndDate.IsZero() {
		AbortWithError(c, contractlinedomain.ErrInvalidDateRange)
		return
	}

	if err := s.lineSvc.EndLine(c.Request.Context(), id, req.EndDate); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}
