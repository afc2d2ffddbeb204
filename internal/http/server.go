package http

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amrheing/mytools-gps-suite/internal/config"
	"github.com/amrheing/mytools-gps-suite/internal/jobs"
	"github.com/amrheing/mytools-gps-suite/internal/registry"
	"github.com/amrheing/mytools-gps-suite/internal/report"
	"github.com/amrheing/mytools-gps-suite/internal/services"
	"github.com/amrheing/mytools-gps-suite/internal/storage"
)

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	runner *jobs.Runner
}

func NewServer(cfg config.Config, logger *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	fm, err := storage.NewFileManager(cfg.DataDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("init file manager: %w", err)
	}

	reg, err := registry.NewRegistry(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("init registry: %w", err)
	}

	runner := jobs.NewRunner(logger, fm, reg, cfg.WorkerCount, cfg.JobRetention)
	shareSvc := services.NewShareService(cfg)
	reportSvc := report.NewReportService()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))
	engine.Use(MaxBodySize(cfg.MaxUploadBytes))
	engine.Use(CORS())

	api := NewAPI(cfg, logger, fm, reg, runner, shareSvc, reportSvc)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg, runner: runner}, nil
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	return s.engine.Run(addr)
}
