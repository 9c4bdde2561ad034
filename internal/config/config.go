package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	LogLevel    string
	LogFile     string
	CORSOrigins []string

	Variant      string
	PayloadShape string
	AreasFile    string

	BackendMode    string
	LookupURL      string
	SubmitURL      string
	TasksURL       string
	FlowDetailURL  string
	BackendTimeout time.Duration

	ImageMaxWidth int
	ImageQuality  float64

	DBPath         string
	PhotoBackend   string
	PhotoPath      string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	KafkaBrokers []string
	KafkaTopic   string

	VisionBackend string
	OllamaHost    string
	OllamaModel   string
	ClaudeAPIKey  string
	ClaudeModel   string

	SessionIdleTTL time.Duration
	MaxSessions    int
}

// Load reads configuration from the environment. Variables in the file named
// by ENV_FILE (default ".env") are applied first without overriding anything
// already set; a missing file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(getEnv("ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var errs []error
	cfg := &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),

		Variant:      strings.ToLower(getEnv("VARIANT", "checkin")),
		PayloadShape: strings.ToLower(getEnv("PAYLOAD_SHAPE", "nested")),
		AreasFile:    getEnv("AREAS_FILE", ""),

		BackendMode:    strings.ToLower(getEnv("BACKEND_MODE", "live")),
		LookupURL:      getEnv("LOOKUP_URL", ""),
		SubmitURL:      getEnv("SUBMIT_URL", ""),
		TasksURL:       getEnv("TASKS_URL", ""),
		FlowDetailURL:  getEnv("FLOW_DETAIL_URL", ""),
		BackendTimeout: getDuration("BACKEND_TIMEOUT", 30*time.Second, &errs),

		ImageMaxWidth: getInt("IMAGE_MAX_WIDTH", 1024, &errs),
		ImageQuality:  getFloat("IMAGE_QUALITY", 0.7, &errs),

		DBPath:         getEnv("DB_PATH", "/data/roomcheck.db"),
		PhotoBackend:   strings.ToLower(getEnv("PHOTO_BACKEND", "none")),
		PhotoPath:      getEnv("PHOTO_LOCAL_PATH", "/data/evidence"),
		SupabaseURL:    getEnv("SUPABASE_URL", ""),
		SupabaseKey:    getEnv("SUPABASE_KEY", ""),
		SupabaseBucket: getEnv("SUPABASE_BUCKET", "inspections"),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "roomcheck.inspections"),

		VisionBackend: strings.ToLower(getEnv("VISION_BACKEND", "none")),
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "moondream"),
		ClaudeAPIKey:  getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:   getEnv("CLAUDE_MODEL", ""),

		SessionIdleTTL: getDuration("SESSION_IDLE_TTL", 2*time.Hour, &errs),
		MaxSessions:    getInt("MAX_SESSIONS", 10000, &errs),
	}

	errs = append(errs, cfg.validate()...)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	oneOf := func(key, val string, allowed ...string) {
		for _, a := range allowed {
			if val == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), val))
	}

	oneOf("VARIANT", c.Variant, "checkin", "checkout")
	oneOf("PAYLOAD_SHAPE", c.PayloadShape, "nested", "flat")
	oneOf("BACKEND_MODE", c.BackendMode, "live", "mock")
	oneOf("PHOTO_BACKEND", c.PhotoBackend, "none", "local", "supabase")
	oneOf("VISION_BACKEND", c.VisionBackend, "none", "claude", "ollama")

	if c.BackendMode == "live" {
		if c.LookupURL == "" {
			errs = append(errs, errors.New("LOOKUP_URL is required when BACKEND_MODE=live"))
		}
		if c.SubmitURL == "" {
			errs = append(errs, errors.New("SUBMIT_URL is required when BACKEND_MODE=live"))
		}
	}
	if c.PhotoBackend == "supabase" && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_KEY are required when PHOTO_BACKEND=supabase"))
	}
	if c.VisionBackend == "claude" && c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required when VISION_BACKEND=claude"))
	}
	if c.ImageMaxWidth <= 0 {
		errs = append(errs, fmt.Errorf("IMAGE_MAX_WIDTH must be positive, got %d", c.ImageMaxWidth))
	}
	if c.ImageQuality <= 0 || c.ImageQuality > 1 {
		errs = append(errs, fmt.Errorf("IMAGE_QUALITY must be in (0, 1], got %v", c.ImageQuality))
	}
	if c.BackendTimeout <= 0 {
		errs = append(errs, errors.New("BACKEND_TIMEOUT must be positive"))
	}
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TTL must be positive"))
	}
	if c.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("MAX_SESSIONS must be positive, got %d", c.MaxSessions))
	}
	return errs
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int, errs *[]error) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return v
}

func getFloat(key string, defaultVal float64, errs *[]error) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return v
}

func getDuration(key string, defaultVal time.Duration, errs *[]error) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
