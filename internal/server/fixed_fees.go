package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/tallyops/meridian/internal/billingperiod"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	prorationdomain "github.com/tallyops/meridian/internal/proration/domain"
)

type runFixedFeesRequest struct {
	ClientID    string `json:"client_id"`
	Date        string `json:"date"`
	Granularity string `json:"granularity"`
}

type runFixedFeesResponse struct {
	Charges []prorationdomain.FixedCharge `json:"charges"`
}

// RunFixedFees computes fixed charges for the billing period containing the
// given date. Omitting the date targets the current period.
func (s *Server) RunFixedFees(c *gin.Context) {
	var req runFixedFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	clientID, err := snowflake.ParseString(req.ClientID)
	if err != nil || clientID == 0 {
		AbortWithError(c, prorationdomain.ErrInvalidClient)
		return
	}

	at := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			AbortWithError(c, prorationdomain.ErrInvalidPeriod)
			return
		}
		at = parsed
	}

	granularity, err := contractlinedomain.ParseGranularity(req.Granularity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	period, err := billingperiod.For(at, granularity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	charges, err := s.prorationSvc.RunFixedFees(c.Request.Context(), clientID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, runFixedFeesResponse{Charges: charges})
}
