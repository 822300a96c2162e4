package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	BitableAppID     string
	BitableAppSecret string
	BitableAppToken  string
	BitableTableID   string
	BitableBaseURL   string

	ArkAPIKey     string
	ArkEndpointID string
	ArkBaseURL    string

	PageSize   int
	MaxPages   int
	MaxRetries int

	ListenAddr      string
	DebugRejections bool
	ExportPath      string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		BitableAppID:     getEnv("BITABLE_APP_ID", ""),
		BitableAppSecret: getEnv("BITABLE_APP_SECRET", ""),
		BitableAppToken:  getEnv("BITABLE_APP_TOKEN", ""),
		BitableTableID:   getEnv("BITABLE_TABLE_ID", ""),
		BitableBaseURL:   getEnv("BITABLE_BASE_URL", "https://open.feishu.cn"),

		ArkAPIKey:     getEnv("ARK_API_KEY", ""),
		ArkEndpointID: getEnv("ARK_ENDPOINT_ID", ""),
		ArkBaseURL:    getEnv("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),

		PageSize: getEnvInt("PAGE_SIZE", 100),
		MaxPages: getEnvInt("MAX_PAGES", 50),
		// Failed upstream calls surface immediately unless the operator
		// opts in to transport-level retries.
		MaxRetries: getEnvInt("MAX_RETRIES", 1),

		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		DebugRejections: getEnvBool("DEBUG_REJECTIONS", false),
		ExportPath:      getEnv("EXPORT_PATH", "./output/customers.csv"),
	}
}

// UpstreamReady reports whether every credential needed for the listing
// fetch is present. Missing configuration is surfaced before any network
// call is attempted.
func (c *Config) UpstreamReady() bool {
	return c.BitableAppID != "" && c.BitableAppSecret != "" &&
		c.BitableAppToken != "" && c.BitableTableID != ""
}

// ArkReady reports whether the completion-API credentials are present.
func (c *Config) ArkReady() bool {
	return c.ArkAPIKey != "" && c.ArkEndpointID != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
