package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	allocationdomain "github.com/tallyops/meridian/internal/allocation/domain"
	catalogdomain "github.com/tallyops/meridian/internal/catalog/domain"
	"github.com/tallyops/meridian/internal/config"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	prorationdomain "github.com/tallyops/meridian/internal/proration/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	genID  *snowflake.Node

	catalogSvc    catalogdomain.Service
	lineSvc       contractlinedomain.Service
	allocationSvc allocationdomain.Orchestrator
	prorationSvc  prorationdomain.Calculator
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	GenID         *snowflake.Node
	CatalogSvc    catalogdomain.Service
	LineSvc       contractlinedomain.Service
	AllocationSvc allocationdomain.Orchestrator
	ProrationSvc  prorationdomain.Calculator
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		genID:  p.GenID,

		catalogSvc:    p.CatalogSvc,
		lineSvc:       p.LineSvc,
		allocationSvc: p.AllocationSvc,
		prorationSvc:  p.ProrationSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Service catalog --------
	api.GET("/services", s.ListServices)
	api.POST("/services", s.CreateService)
	api.GET("/services/:id", s.GetServiceByID)

	// -------- Contract lines --------
	api.GET("/contract-lines", s.ListContractLines)
	api.POST("/contract-lines", s.CreateContractLine)
	api.GET("/contract-lines/:id", s.GetContractLine)
	api.POST("/contract-lines/:id/services", s.AssignServiceToLine)
	api.POST("/contract-lines/:id/buckets", s.AttachBucketToLine)
	api.POST("/contract-lines/:id/end", s.EndContractLine)

	// -------- Allocations --------
	api.GET("/allocations", s.ListAllocations)
	api.POST("/allocations", s.AllocateUnit)
	api.POST("/allocations/batch", s.AllocateBatch)
	api.GET("/allocations/units/:unitId", s.GetAllocationByUnitID)

	// -------- Fixed fees --------
	api.POST("/fixed-charges/run", s.RunFixedFees)
}
