package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"mapchat/api/db"
	"mapchat/api/internal/app"
	"mapchat/api/internal/artifact"
	"mapchat/api/internal/comments"
	"mapchat/api/internal/config"
	"mapchat/api/internal/export"
	"mapchat/api/internal/geo"
	"mapchat/api/internal/logger"
	"mapchat/api/internal/metrics"
	"mapchat/api/internal/search"
	"mapchat/api/internal/sentiment"
	"mapchat/api/internal/session"
	"mapchat/api/internal/store"
	"mapchat/api/internal/tier"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"   env:"CONFIG_FILE"    description:"Path to an optional YAML configuration file" default:"config.yaml"`
	EnvFile    string `short:"e" long:"env-file" env:"ENV_FILE"       description:"Path to an optional .env file"                default:".env"`
	Addr       string `short:"a" long:"addr"     env:"LISTEN_ADDRESS" description:"Address to listen on, overrides the configuration"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile, opts.EnvFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer database.Close()

	if err := store.ApplyMigrations(ctx, database, db.Migrations()); err != nil {
		log.Fatal().Err(err).Msg("Migrations failed")
	}

	m := metrics.New()
	dataStore := store.NewPostgresStore(database)
	checks := map[string]func(context.Context) error{"database": dataStore.Ping}

	var tierCache *tier.RedisCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		tierCache, err = tier.NewRedisCache(cfg.RedisURL, cfg.TierCacheTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		defer tierCache.Close()
		checks["redis"] = tierCache.Ping
		log.Info().Dur("ttl", cfg.TierCacheTTL).Msg("Caching tier lookups in Redis")
	}
	tiers := tier.NewStoreResolver(dataStore, tierCache)

	pgfts := search.NewPgFTS(database)
	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		engine = meiliClient
	}
	searchService := search.NewService(engine, pgfts, pgfts)
	go searchService.ReindexAll(ctx)

	var analyzer sentiment.Analyzer = sentiment.KeywordAnalyzer{}
	if strings.TrimSpace(cfg.Sentiment.APIKey) != "" {
		analyzer = sentiment.NewHTTPAnalyzer(sentiment.HTTPOptions{
			Endpoint: cfg.Sentiment.Endpoint,
			APIKey:   cfg.Sentiment.APIKey,
			Model:    cfg.Sentiment.Model,
			Timeout:  cfg.Sentiment.Timeout,
		})
	} else {
		log.Warn().Msg("No sentiment API key configured, using keyword heuristic")
	}

	commentService := comments.NewService(comments.Options{
		Store:           dataStore,
		Tiers:           tiers,
		Analyzer:        analyzer,
		Index:           searchService,
		AnalysisTimeout: cfg.Sentiment.Timeout,
		OnAnalyzed:      m.SentimentAnalyzed,
	})

	exportOpts := export.Options{
		Renderer:   export.NewMapRenderer(),
		PageMargin: cfg.Render.PageMargin,
		OnDenied:   m.ExportDenied,
		OnRendered: m.ExportRendered,
	}
	browser := export.NewBrowserRenderer(cfg.Render.ChromePath, cfg.Render.Timeout)
	if browser.Available() {
		exportOpts.Renderer = browser
		exportOpts.Printer = browser
		log.Info().Msg("Rendering exports with headless Chrome")
	} else {
		log.Warn().Msg("Chrome not found, rendering PNG exports in-process and disabling PDF")
	}
	exportService := export.NewService(exportOpts)

	var artifacts app.ArtifactStore
	if strings.TrimSpace(cfg.Artifacts.Endpoint) != "" {
		artifactStore, err := artifact.NewMinio(ctx, artifact.Config{
			Endpoint:  cfg.Artifacts.Endpoint,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			Bucket:    cfg.Artifacts.Bucket,
			Region:    cfg.Artifacts.Region,
			UseSSL:    cfg.Artifacts.UseSSL,
			LinkTTL:   cfg.Artifacts.LinkTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Artifact store unavailable")
		}
		artifacts = artifactStore
	}

	sessions := session.NewManager(session.Options{
		IdleTTL:     cfg.Sessions.IdleTTL,
		CreateDelay: cfg.Sessions.CreateDelay,
		OnRebuild: func(sessionID string, features []geo.Feature) {
			m.Rebuilt()
			log.Debug().Str("session", sessionID).Int("features", len(features)).Msg("Collection rebuilt")
		},
	})
	defer sessions.Close()
	m.LiveSessions(sessions.Len)
	go sessions.Run(ctx, cfg.Sessions.SweepInterval)

	httpServer := app.NewHTTPServer(app.Deps{
		Sessions:   sessions,
		Tiers:      tiers,
		Exports:    exportService,
		Comments:   commentService,
		Search:     searchService,
		Artifacts:  artifacts,
		Metrics:    m,
		Checks:     checks,
		JWTSecret:  []byte(cfg.JWTSecret),
		CORSOrigin: cfg.CORSOrigin,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Render.Timeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("Mapchat API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	commentService.Wait()
	searchService.Wait()
}
