package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Pipeline    PipelineConfig
	Queue       QueueConfig
	Model       ModelConfig
	Speech      SpeechConfig
	Transcript  TranscriptConfig
	Redis       RedisConfig
	FFmpegPath  string
	StoragePath string
}

type ServerConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	StatusRetention time.Duration
}

type PipelineConfig struct {
	SampleRate int
	// ProcessingTimeout bounds one job; zero disables it.
	ProcessingTimeout time.Duration
	// DefaultModel applies to jobs without a model. Empty leaves the choice
	// to the backend (base for whisper.cpp, whisper-1 for OpenAI).
	DefaultModel  string
	DefaultDevice string
	SpeechMinGap  float64
}

type QueueConfig struct {
	File       string
	BatchDelay time.Duration
}

type ModelConfig struct {
	Backend       string // whispercpp or openai
	WhisperBinary string
	ModelDir      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

type SpeechConfig struct {
	SileroModelPath      string
	Threshold            float64
	MinSilenceDurationMs int
	SpeechPadMs          int
}

type TranscriptConfig struct {
	Backend           string // file or cassandra
	Dir               string
	CassandraHosts    []string
	CassandraKeyspace string
	CassandraTable    string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Channel   string
	StatusKey string
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// Load reads .env (when present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Config: Failed to load .env: %v", err)
	}

	storagePath := getEnv("STORAGE_PATH", "./data")

	return &Config{
		Server: ServerConfig{
			Address:         getEnv("SERVER_ADDRESS", ":8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			StatusRetention: getEnvDuration("STATUS_RETENTION", 10*time.Minute),
		},
		Pipeline: PipelineConfig{
			SampleRate:        getEnvInt("SAMPLE_RATE", 16000),
			ProcessingTimeout: getEnvDuration("PROCESSING_TIMEOUT", 0),
			DefaultModel:      getEnv("WHISPER_MODEL", ""),
			DefaultDevice:     getEnv("WHISPER_DEVICE", "auto"),
			SpeechMinGap:      getEnvFloat("SPEECH_MIN_GAP", 3.0),
		},
		Queue: QueueConfig{
			File:       getEnv("QUEUE_FILE", filepath.Join(storagePath, "queue.json")),
			BatchDelay: getEnvDuration("QUEUE_BATCH_DELAY", time.Second),
		},
		Model: ModelConfig{
			Backend:       strings.ToLower(getEnv("TRANSCRIBE_BACKEND", "whispercpp")),
			WhisperBinary: getEnv("WHISPER_BINARY", "whisper-cli"),
			ModelDir:      getEnv("WHISPER_MODEL_DIR", filepath.Join(storagePath, "models")),
			OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		},
		Speech: SpeechConfig{
			SileroModelPath:      os.Getenv("SILERO_MODEL_PATH"),
			Threshold:            getEnvFloat("SILERO_THRESHOLD", 0.5),
			MinSilenceDurationMs: getEnvInt("SILERO_MIN_SILENCE_MS", 100),
			SpeechPadMs:          getEnvInt("SILERO_SPEECH_PAD_MS", 30),
		},
		Transcript: TranscriptConfig{
			Backend:           strings.ToLower(getEnv("TRANSCRIPT_BACKEND", "file")),
			Dir:               getEnv("TRANSCRIPT_DIR", filepath.Join(storagePath, "transcripts")),
			CassandraHosts:    getEnvList("CASSANDRA_HOSTS", []string{"localhost"}),
			CassandraKeyspace: getEnv("CASSANDRA_KEYSPACE", "transcript_db"),
			CassandraTable:    getEnv("CASSANDRA_TABLE", "transcripts"),
		},
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        getEnvInt("REDIS_DB", 0),
			Channel:   getEnv("REDIS_CHANNEL", "transcription:status"),
			StatusKey: getEnv("REDIS_STATUS_KEY", "transcription:jobs"),
		},
		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		StoragePath: storagePath,
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Config: Invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Config: Invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Config: Invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return v
}

func getEnvList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
