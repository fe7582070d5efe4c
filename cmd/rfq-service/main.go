package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nats-io/nats.go"

	"github.com/nurpe/foundry-rfq/internal/auth"
	"github.com/nurpe/foundry-rfq/internal/config"
	"github.com/nurpe/foundry-rfq/internal/db"
	"github.com/nurpe/foundry-rfq/internal/excel"
	httphandler "github.com/nurpe/foundry-rfq/internal/http"
	"github.com/nurpe/foundry-rfq/internal/http/middleware"
	"github.com/nurpe/foundry-rfq/internal/logger"
	"github.com/nurpe/foundry-rfq/internal/matcher"
	"github.com/nurpe/foundry-rfq/internal/metrics"
	"github.com/nurpe/foundry-rfq/internal/notify"
	"github.com/nurpe/foundry-rfq/internal/pdf"
	"github.com/nurpe/foundry-rfq/internal/repository"
	"github.com/nurpe/foundry-rfq/internal/service"
	"github.com/nurpe/foundry-rfq/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	rfqRepo := repository.NewRFQRepository(database)
	broadcastRepo := repository.NewBroadcastRepository(database)
	supplierRepo := repository.NewSupplierRepository(database)
	orderBridge := repository.NewOrderBridge(database)

	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("rfq-service"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect nats")
		}
		defer nc.Drain() //nolint:errcheck
		notifier, err = notify.NewNATSNotifier(nc, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init nats notifier")
		}
	} else {
		log.Warn().Msg("NATS_URL not set, notifications are log-only")
		notifier = notify.NewLogNotifier(log)
	}

	supplierMatcher := matcher.New(cfg.Matcher)
	rfqService := service.NewRFQService(rfqRepo, notifier, log)
	raceService := service.NewRaceService(rfqRepo, broadcastRepo, supplierRepo, supplierMatcher, notifier, cfg.Race, log)
	awardService := service.NewAwardService(rfqRepo, broadcastRepo, supplierRepo, orderBridge, notifier, log)

	excelGenerator := excel.NewGenerator()
	pdfGenerator, err := pdf.NewGenerator()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init pdf generator")
	}

	if cfg.Metrics.Addr != "" {
		metrics.StartServer(cfg.Metrics.Addr)
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics listener started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	holdSweeper := sweeper.New(rfqRepo, cfg.Race.SweepInterval, log)
	go holdSweeper.Start(ctx)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(rfqService, raceService, awardService, excelGenerator, pdfGenerator, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting rfq service")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
