package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings shared by the control service,
// the bot process and the monitor.
type Config struct {
	Port string

	// Terminal bridge
	BridgeURL      string
	UseMockGateway bool

	// Execution tuning
	MaxRetries    int
	BaseDeviation int
	MagicNumber   int
	PoolSize      int

	// Auth
	JWTSecret        string
	OperatorPassword string

	// Cross-process handoff
	HandoffDir string

	// Audit journal
	EnableJournal bool
	JournalPath   string

	// Bot process
	BotConfigPath string

	// Model worker
	EnablePredictWorker bool
	PredictWorkerAddr   string

	// API rate limiting (requests per second per client)
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		BridgeURL:           getEnv("BRIDGE_URL", "http://127.0.0.1:5000"),
		UseMockGateway:      getEnv("USE_MOCK_GATEWAY", "false") == "true",
		MaxRetries:          getEnvInt("ORDER_MAX_RETRIES", 5),
		BaseDeviation:       getEnvInt("ORDER_BASE_DEVIATION", 50),
		MagicNumber:         getEnvInt("MAGIC_NUMBER", 123456),
		PoolSize:            getEnvInt("WORKER_POOL_SIZE", 10),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		OperatorPassword:    getEnv("OPERATOR_PASSWORD", ""),
		HandoffDir:          getEnv("HANDOFF_DIR", "./data/handoff"),
		EnableJournal:       getEnv("ENABLE_JOURNAL", "true") == "true",
		JournalPath:         getEnv("JOURNAL_PATH", "./data/journal.db"),
		BotConfigPath:       getEnv("BOT_CONFIG_PATH", "./configs/bot.yaml"),
		EnablePredictWorker: getEnv("ENABLE_PREDICT_WORKER", "false") == "true",
		PredictWorkerAddr:   getEnv("PREDICT_WORKER_ADDR", "localhost:50051"),
		RateLimitRPS:        getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 40),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
