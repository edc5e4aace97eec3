// Package server is the thin HTTP surface over the settlement core.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulsepaylabs/pulsepay/internal/config"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	"github.com/pulsepaylabs/pulsepay/internal/scheduler"
	settlementdomain "github.com/pulsepaylabs/pulsepay/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(Start),
)

type Server struct {
	db  *gorm.DB
	log *zap.Logger
	cfg config.HTTPConfig

	partnerRepo   partnerdomain.Repository
	schemeSvc     schemedomain.Service
	settlementSvc settlementdomain.Service
	sched         *scheduler.Scheduler
}

type Param struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Cfg           config.Config
	PartnerRepo   partnerdomain.Repository
	SchemeSvc     schemedomain.Service
	SettlementSvc settlementdomain.Service
	Scheduler     *scheduler.Scheduler
}

func NewServer(p Param) *Server {
	return &Server{
		db:            p.DB,
		log:           p.Log.Named("server"),
		cfg:           p.Cfg.HTTP,
		partnerRepo:   p.PartnerRepo,
		schemeSvc:     p.SchemeSvc,
		settlementSvc: p.SettlementSvc,
		sched:         p.Scheduler,
	}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.cfg.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1", s.APIKeyRequired())
	{
		v1.POST("/settlement/instant", s.SettleInstant)
		v1.GET("/settlement/batches", s.ListBatches)
		v1.GET("/settlement/batches/:id", s.GetBatch)
		v1.POST("/settlement/run-now", s.RunSweepNow)
		v1.GET("/settlement/schedule", s.GetSchedule)
		v1.PUT("/settlement/schedule", s.UpdateSchedule)

		v1.POST("/schemes", s.CreateScheme)
		v1.GET("/schemes", s.ListSchemes)
		v1.GET("/schemes/:id", s.GetScheme)
		v1.POST("/schemes/:id/deactivate", s.DeactivateScheme)

		v1.PUT("/partners/:id/settlement-pause", s.SetSettlementPause)
	}

	return router
}

func Start(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Router(),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.log.Info("http server starting", zap.String("addr", s.cfg.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
