package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Generation backend configuration (OpenAI-compatible protocol).
	// The primary backend is typically a local Ollama instance; the
	// fallback backend is a cloud endpoint speaking the same protocol.
	LLMProvider        string // ollama, openai, or any OpenAI-compatible provider
	LLMAPIKey          string
	LLMBaseURL         string
	LLMModel           string
	LLMFallbackAPIKey  string
	LLMFallbackBaseURL string
	LLMFallbackModel   string
	LLMTimeout         int // generation request timeout in seconds (default: 30)

	// Production database (read-only query target).
	ProdDSN     string // postgres DSN of the manufacturing database
	ProdRowCap  int    // LIMIT injected into sanitized SQL (default: 100)
	ProdTimeout int    // query execution timeout in seconds (default: 15)

	// Agent loop budgets.
	AgentMaxIterations int // decision calls per turn (default: 3)
	AgentDeadline      int // wall-clock budget per turn in seconds (default: 30)

	Mode    string // prod, dev, demo
	Addr    string
	Port    int
	Data    string // data directory for the metadata store
	Driver  string // metadata store driver, sqlite only
	DSN     string
	Version string
}

// Provider default configurations for the generation backends.
// Used when the base URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "exaone3.5:7.8b",
	},
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// HasFallbackBackend reports whether a secondary generation backend is configured.
func (p *Profile) HasFallbackBackend() bool {
	return p.LLMFallbackBaseURL != "" || p.LLMFallbackAPIKey != ""
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

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("PRODTALK_LLM_PROVIDER", "ollama")
	p.LLMAPIKey = getEnvOrDefault("PRODTALK_LLM_API_KEY", "ollama")
	p.LLMBaseURL = getEnvOrDefault("PRODTALK_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("PRODTALK_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("PRODTALK_LLM_TIMEOUT_SECONDS", 30)

	p.LLMFallbackAPIKey = getEnvOrDefault("PRODTALK_LLM_FALLBACK_API_KEY", "")
	p.LLMFallbackBaseURL = getEnvOrDefault("PRODTALK_LLM_FALLBACK_BASE_URL", "")
	p.LLMFallbackModel = getEnvOrDefault("PRODTALK_LLM_FALLBACK_MODEL", "")

	p.ProdDSN = getEnvOrDefault("PRODTALK_PROD_DSN", "")
	p.ProdRowCap = getEnvOrDefaultInt("PRODTALK_PROD_ROW_CAP", 100)
	p.ProdTimeout = getEnvOrDefaultInt("PRODTALK_PROD_TIMEOUT_SECONDS", 15)

	p.AgentMaxIterations = getEnvOrDefaultInt("PRODTALK_AGENT_MAX_ITERATIONS", 3)
	p.AgentDeadline = getEnvOrDefaultInt("PRODTALK_AGENT_DEADLINE_SECONDS", 30)

	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}
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

	// Trim trailing \ or / in case user supplies.
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

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" {
		return errors.Errorf("unsupported metadata store driver %q", p.Driver)
	}

	if p.AgentMaxIterations <= 0 {
		p.AgentMaxIterations = 3
	}
	if p.AgentDeadline <= 0 {
		p.AgentDeadline = 30
	}
	if p.ProdRowCap <= 0 {
		p.ProdRowCap = 100
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/prodtalk"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.DSN == "" {
		dbFile := fmt.Sprintf("prodtalk_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
