package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/cleanup"
	"github.com/codebuildervaibhav/call-transcription/internal/config"
	"github.com/codebuildervaibhav/call-transcription/internal/diarization"
	"github.com/codebuildervaibhav/call-transcription/internal/handlers"
	"github.com/codebuildervaibhav/call-transcription/internal/language"
	"github.com/codebuildervaibhav/call-transcription/internal/logging"
	"github.com/codebuildervaibhav/call-transcription/internal/pipeline"
	"github.com/codebuildervaibhav/call-transcription/internal/queue"
	"github.com/codebuildervaibhav/call-transcription/internal/source"
	"github.com/codebuildervaibhav/call-transcription/internal/storage"
	"github.com/codebuildervaibhav/call-transcription/internal/transcription"
	"github.com/codebuildervaibhav/call-transcription/internal/translation"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logBuffer := logging.NewBuffer()
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format, logBuffer)

	// Ensure directories exist
	if err := cleanup.EnsureTempDirExists(cfg.Storage.TempDir); err != nil {
		log.Fatal().Err(err).Msg("failed to create temp directory")
	}

	log.Info().Msg("initializing components")
	ctx := context.Background()

	// Database
	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	cache, closeCache, err := newCache(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Cache.Backend).Msg("failed to initialize cache")
	}
	defer closeCache()

	transcriber := newTranscriber(cfg, log)

	diarizer := diarization.NewPyannoteClient(diarization.Options{
		BaseURL:     cfg.Diarization.URL,
		Token:       cfg.Diarization.Token,
		Timeout:     time.Duration(cfg.Diarization.TimeoutSeconds) * time.Second,
		MinSpeakers: cfg.Diarization.MinSpeakers,
		MaxSpeakers: cfg.Diarization.MaxSpeakers,
	}, log)
	probeCtx, cancelProbe := context.WithTimeout(ctx, 5*time.Second)
	if !diarizer.Available(probeCtx) {
		log.Warn().Str("url", cfg.Diarization.URL).Msg("diarization service not reachable yet")
	}
	cancelProbe()

	translator := translation.NewOpenAITranslator(translation.Options{
		APIKey:      cfg.Translation.APIKey,
		BaseURL:     cfg.Translation.BaseURL,
		Model:       cfg.Translation.Model,
		MaxTokens:   cfg.Translation.MaxTokens,
		Temperature: cfg.Translation.Temperature,
	})
	detector := language.WhatlangDetector{}

	// Worker pool
	workerPool := queue.NewWorkerPool(cfg.Workers.Count, transcriber, log)
	workerPool.Start()

	deps := pipeline.Deps{
		Resolver:    source.NewResolver(time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second, log),
		Cache:       cache,
		Normalizer:  transcription.NewFFmpegNormalizer(cfg.Audio.FFmpegPath, cfg.Audio.SampleRate),
		Diarizer:    diarizer,
		Coordinator: workerPool,
		Classifier:  language.NewClassifier(detector),
		Translator:  translator,
		Indexer:     db,
		TempDir:     cfg.Storage.TempDir,
	}

	// Google Drive client (optional - may fail if credentials not set up)
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); cfg.GoogleDrive.CredentialsFile != "" && err == nil {
		driveClient, err := storage.NewDriveClient(ctx,
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Warn().Err(err).Msg("Google Drive not available, transcripts will only be saved locally")
		} else {
			deps.Archiver = driveClient
			log.Info().Str("folder", cfg.GoogleDrive.FolderName).Msg("Google Drive archive enabled")
		}
	} else {
		log.Info().Msg("Google Drive credentials not found, saving locally only")
	}

	pipe := pipeline.New(deps, log)

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		cfg.Cleanup.IntervalMinutes,
		cfg.Cleanup.MaxAgeHours,
		log,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Limits.MaxFileSizeMB * 1024 * 1024,
		ErrorHandler:          handlers.ErrorHandler,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		Output: io.MultiWriter(os.Stdout, logBuffer),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	handlers.Register(app, handlers.Routes{
		APIToken:    cfg.Auth.APIToken,
		Transcribe:  handlers.NewTranscribeHandler(pipe, cfg.Limits.MaxFileSizeMB, log),
		Translate:   handlers.NewTranslateHandler(detector, translator, log),
		Transcripts: handlers.NewTranscriptsHandler(db, cache, log),
		Stream:      handlers.NewStreamHandler(pipe, cfg.Limits.MaxFileSizeMB, log),
		Logs:        logBuffer,
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().
		Str("addr", addr).
		Str("cache", cfg.Cache.Backend).
		Str("transcription", cfg.Transcription.Provider).
		Int("workers", cfg.Workers.Count).
		Strs("endpoints", []string{
			"POST /transcribe",
			"POST /translate",
			"GET  /ws/transcribe",
			"GET  /transcripts",
			"GET  /transcripts/:key",
			"GET  /logs",
			"GET  /health",
		}).
		Msg("server starting")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info().Msg("shutting down gracefully")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Warn().Err(err).Msg("server shutdown incomplete")
		}
	}()

	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("server failed")
	}

	workerPool.Stop()
	pipe.Wait()
	log.Info().Msg("server stopped")
}

// newCache builds the configured result cache. The returned func releases
// backend resources.
func newCache(ctx context.Context, cfg *config.Config, db *storage.MetadataDB) (storage.Cache, func(), error) {
	noop := func() {}
	switch cfg.Cache.Backend {
	case "sqlite":
		return db, noop, nil
	case "redis":
		rc, err := storage.NewRedisCache(ctx, &redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		}, cfg.Cache.Redis.Prefix)
		if err != nil {
			return nil, noop, err
		}
		return rc, func() { rc.Close() }, nil
	default:
		ls, err := storage.NewLocalStorage(cfg.Storage.OutputDir)
		if err != nil {
			return nil, noop, err
		}
		return ls, noop, nil
	}
}

func newTranscriber(cfg *config.Config, log zerolog.Logger) transcription.Transcriber {
	if cfg.Transcription.Provider == "whisper" {
		w := cfg.Transcription.Whisper
		return transcription.NewWhisperTranscriber(w.ModelPath, w.Threads, w.Device, w.Language, log)
	}
	o := cfg.Transcription.OpenAI
	if o.APIKey == "" {
		log.Warn().Msg("no OpenAI API key configured; set TRANSCRIPTION_API or transcription.openai.api_key")
	}
	return transcription.NewOpenAITranscriber(o.APIKey, o.BaseURL, o.Model)
}
