package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fieldpulse/repboard/internal/actionlog"
	"github.com/fieldpulse/repboard/internal/backfill"
	backfilldomain "github.com/fieldpulse/repboard/internal/backfill/domain"
	"github.com/fieldpulse/repboard/internal/config"
	"github.com/fieldpulse/repboard/internal/ingest"
	ingestdomain "github.com/fieldpulse/repboard/internal/ingest/domain"
	"github.com/fieldpulse/repboard/internal/joblock"
	obslogger "github.com/fieldpulse/repboard/internal/observability/logger"
	obsmetrics "github.com/fieldpulse/repboard/internal/observability/metrics"
	"github.com/fieldpulse/repboard/internal/snapshot"
	snapshotdomain "github.com/fieldpulse/repboard/internal/snapshot/domain"
)

var Module = fx.Module("http.server",
	obsmetrics.Module,
	snapshot.Module,
	actionlog.Module,
	joblock.Module,
	ingest.Module,
	backfill.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, reg *prometheus.Registry, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(MetricsMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, reg *prometheus.Registry, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(log, reg, m)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	ingestSvc    ingestdomain.Service
	backfillEng  backfilldomain.Engine
	snapshotRepo snapshotdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	IngestSvc    ingestdomain.Service
	BackfillEng  backfilldomain.Engine
	SnapshotRepo snapshotdomain.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		ingestSvc:    p.IngestSvc,
		backfillEng:  p.BackfillEng,
		snapshotRepo: p.SnapshotRepo,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Reports --------
	v1.POST("/reports/ingest", s.IngestReport)

	// -------- Representatives --------
	v1.GET("/representatives/:id/latest", s.GetLatestSnapshot)
	v1.GET("/representatives/:id/snapshots", s.ListSnapshots)

	// -------- Backfill --------
	jobs := v1.Group("/backfill")
	{
		jobs.GET("/status", s.GetBackfillStatus)
		jobs.GET("/progress", s.GetBackfillProgress)
		jobs.GET("/result", s.GetBackfillResult)
		jobs.POST("/run", s.StartBackfill)
		jobs.POST("/cancel", s.CancelBackfill)
		jobs.POST("/reset", s.ResetBackfill)
		jobs.POST("/validate", s.ValidateBackfill)
	}
}
