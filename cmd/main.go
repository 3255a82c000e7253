package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transcription-queue/pkg/api"
	"transcription-queue/pkg/audio"
	"transcription-queue/pkg/command"
	"transcription-queue/pkg/config"
	"transcription-queue/pkg/events"
	"transcription-queue/pkg/pipeline"
	"transcription-queue/pkg/queue"
	"transcription-queue/pkg/speech"
	"transcription-queue/pkg/speech/silero"
	"transcription-queue/pkg/storage"
	"transcription-queue/pkg/transcribe"
	"transcription-queue/pkg/transcript"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize storage
	memStore := storage.NewMemoryStore(cfg.Server.StatusRetention)
	diskStore, err := storage.NewDiskStore(cfg.StoragePath)
	if err != nil {
		log.Fatalf("Failed to initialize disk storage: %v", err)
	}
	defer diskStore.Close()

	// Status fan-out
	sinks := events.Multi{memStore, events.LogSink{}}
	if cfg.Redis.Enabled() {
		client, err := events.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis status publishing disabled: %v", err)
		} else {
			redisSink := events.NewRedisSink(client, cfg.Redis.Channel, cfg.Redis.StatusKey)
			defer redisSink.Close()
			sinks = append(sinks, redisSink)
		}
	}

	// Transcript documents
	var transcripts transcript.Store
	switch cfg.Transcript.Backend {
	case "cassandra":
		session, err := transcript.ConnectCassandra(cfg.Transcript.CassandraHosts, cfg.Transcript.CassandraKeyspace)
		if err != nil {
			log.Fatalf("Failed to initialize transcript store: %v", err)
		}
		cassandraStore := transcript.NewCassandraStore(session, cfg.Transcript.CassandraTable)
		defer cassandraStore.Close()
		transcripts = cassandraStore
	default:
		transcripts = transcript.NewFileStore(cfg.Transcript.Dir)
	}

	// Speech model backend
	var backend transcribe.Backend
	switch cfg.Model.Backend {
	case "openai":
		backend = transcribe.NewOpenAIBackend(cfg.Model.OpenAIAPIKey, transcribe.WithBaseURL(cfg.Model.OpenAIBaseURL))
	default:
		backend = transcribe.NewWhisperCPPBackend(cfg.Model.WhisperBinary, cfg.Model.ModelDir, command.ExecRunner{})
	}

	var detector speech.Detector
	if cfg.Speech.SileroModelPath != "" {
		vad := silero.New(silero.Config{
			ModelPath:            cfg.Speech.SileroModelPath,
			Threshold:            float32(cfg.Speech.Threshold),
			MinSilenceDurationMs: cfg.Speech.MinSilenceDurationMs,
			SpeechPadMs:          cfg.Speech.SpeechPadMs,
		})
		defer vad.Close()
		detector = vad
	}

	// Initialize pipeline
	jobQueue := queue.New(queue.Options{
		BatchDelay: cfg.Queue.BatchDelay,
		Store:      queue.NewFileStore(cfg.Queue.File),
	})
	pipelineManager := pipeline.NewManager(cfg.Pipeline, pipeline.Dependencies{
		Queue:       jobQueue,
		Loader:      audio.NewLoader(cfg.FFmpegPath, cfg.Pipeline.SampleRate, command.ExecRunner{}),
		Detector:    detector,
		Models:      transcribe.NewModelCache(backend),
		Engine:      transcribe.NewEngine(cfg.Pipeline.SampleRate),
		Transcripts: transcripts,
		History:     diskStore,
		Sink:        sinks,
	})

	if n, err := pipelineManager.Resume(); err != nil {
		log.Printf("Failed to resume queue from %s: %v", cfg.Queue.File, err)
	} else if n > 0 {
		log.Printf("Resumed %d queued job(s) from %s", n, cfg.Queue.File)
	}

	// Start pipeline worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipelineManager.Start(ctx); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}

	// Initialize API handlers
	handlers := api.NewHandlers(pipelineManager, memStore, transcripts)
	router := api.NewRouter(handlers)

	// Start HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	pipelineManager.Stop()

	log.Println("Server exited")
}
