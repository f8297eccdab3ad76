package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Embedding configuration (OpenAI-compatible protocol).
	AIEmbeddingProvider   string
	AIEmbeddingModel      string
	AIEmbeddingAPIKey     string
	AIEmbeddingBaseURL    string
	EmbeddingDimensions   int
	EmbeddingTimeout      int // seconds
	EmbeddingRateLimitQPS float64

	// Labeler configuration. When no API key is configured, the heuristic
	// labeler is used instead.
	AILabelerModel   string
	AILabelerAPIKey  string
	AILabelerBaseURL string
	AILabelerTimeout int // seconds

	// Retrieval defaults.
	RetrievalCandidateLimit int // metadata prefilter cap
	RetrievalTimeout        int // seconds

	Mode    string
	DSN     string
	Driver  string
	Version string
	Addr    string
	Data    string
	Port    int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsEmbeddingEnabled reports whether an embedding backend is configured.
// Without one, writes fall back to the pending-vector path and retrieval
// degrades to metadata-only.
func (p *Profile) IsEmbeddingEnabled() bool {
	return p.AIEmbeddingAPIKey != ""
}

// IsLabelerEnabled reports whether a model-backed labeler is configured.
func (p *Profile) IsLabelerEnabled() bool {
	return p.AILabelerAPIKey != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.AIEmbeddingProvider = getEnvOrDefault("LYRICMEM_AI_EMBEDDING_PROVIDER", "siliconflow")
	p.AIEmbeddingModel = getEnvOrDefault("LYRICMEM_AI_EMBEDDING_MODEL", "BAAI/bge-m3")
	p.AIEmbeddingAPIKey = getEnvOrDefault("LYRICMEM_AI_EMBEDDING_API_KEY", "")
	p.AIEmbeddingBaseURL = getEnvOrDefault("LYRICMEM_AI_EMBEDDING_BASE_URL", "https://api.siliconflow.cn/v1")
	p.EmbeddingDimensions = getEnvOrDefaultInt("LYRICMEM_AI_EMBEDDING_DIMENSIONS", 1024)
	p.EmbeddingTimeout = getEnvOrDefaultInt("LYRICMEM_AI_EMBEDDING_TIMEOUT_SECONDS", 30)
	p.EmbeddingRateLimitQPS = getEnvOrDefaultFloat("LYRICMEM_AI_EMBEDDING_RATE_LIMIT_QPS", 5)

	p.AILabelerModel = getEnvOrDefault("LYRICMEM_AI_LABELER_MODEL", "Qwen/Qwen2.5-7B-Instruct")
	p.AILabelerAPIKey = getEnvOrDefault("LYRICMEM_AI_LABELER_API_KEY", "")
	p.AILabelerBaseURL = getEnvOrDefault("LYRICMEM_AI_LABELER_BASE_URL", "https://api.siliconflow.cn/v1")
	p.AILabelerTimeout = getEnvOrDefaultInt("LYRICMEM_AI_LABELER_TIMEOUT_SECONDS", 60)

	p.RetrievalCandidateLimit = getEnvOrDefaultInt("LYRICMEM_RETRIEVAL_CANDIDATE_LIMIT", 300)
	p.RetrievalTimeout = getEnvOrDefaultInt("LYRICMEM_RETRIEVAL_TIMEOUT_SECONDS", 10)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "lyricmem")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/lyricmem"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("lyricmem_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.EmbeddingDimensions <= 0 {
		return errors.Errorf("embedding dimensions must be positive, got %d", p.EmbeddingDimensions)
	}

	return nil
}
