package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort            string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	RequestTimeout     time.Duration
	JWTKey             []byte
	JWTExp             time.Duration
	AuthRequired       bool

	LogLevel  string
	LogFormat string

	DBEnabled  bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EvaluationQueueName string
	EmbeddedWorker      bool
	WorkerConcurrency   int
	CacheFreshness      time.Duration
	SessionTTL          time.Duration

	Judge   JudgeConfig
	Backend BackendConfig
}

// JudgeConfig groups everything needed to talk to the Judge0 instance.
type JudgeConfig struct {
	BaseURL           string
	AuthToken         string
	HTTPTimeout       time.Duration
	ProbeTimeout      time.Duration
	BatchTimeout      time.Duration
	SingleTimeout     time.Duration
	PollInterval      time.Duration
	BatchPollInterval time.Duration
	MaxBackoff        time.Duration

	CPUTimeLimit        float64
	CPUExtraTime        float64
	WallTimeLimit       float64
	MemoryLimitKB       int
	StackLimitKB        int
	MaxProcessesThreads int
	EnableNetwork       bool
}

type BackendConfig struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	AppConfig = FromEnv()
}

// FromEnv builds a Config from the current process environment without touching .env files.
func FromEnv() *Config {
	cfg := &Config{
		APIPort:      getEnv("API_PORT", "8080"),
		JWTKey:       []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:       time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		AuthRequired: getEnvAsBool("AUTH_REQUIRED", true),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		DBEnabled:  getEnvAsBool("DB_ENABLED", false),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "user"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "curiosmaze_judge"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		RedisEnabled:  getEnvAsBool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		EvaluationQueueName: getEnv("EVALUATION_QUEUE_NAME", "evaluation_jobs_queue"),
		EmbeddedWorker:      getEnvAsBool("EMBEDDED_WORKER", true),
		WorkerConcurrency:   getEnvAsInt("WORKER_CONCURRENCY", 1),
		CacheFreshness:      time.Duration(getEnvAsInt("CACHE_FRESHNESS_SECONDS", 120)) * time.Second,
		SessionTTL:          time.Duration(getEnvAsInt("SESSION_TTL_HOURS", 24)) * time.Hour,

		Judge: JudgeConfig{
			BaseURL:           getEnv("JUDGE0_API_URL", "http://localhost:2358"),
			AuthToken:         getEnv("JUDGE0_AUTH_TOKEN", ""),
			HTTPTimeout:       getEnvAsMillis("JUDGE0_HTTP_TIMEOUT_MS", 30000),
			ProbeTimeout:      getEnvAsMillis("JUDGE0_PROBE_TIMEOUT_MS", 3000),
			BatchTimeout:      getEnvAsMillis("JUDGE0_BATCH_TIMEOUT_MS", 45000),
			SingleTimeout:     getEnvAsMillis("JUDGE0_SINGLE_TIMEOUT_MS", 30000),
			PollInterval:      getEnvAsMillis("JUDGE0_POLL_INTERVAL_MS", 1000),
			BatchPollInterval: getEnvAsMillis("JUDGE0_BATCH_POLL_INTERVAL_MS", 2000),
			MaxBackoff:        getEnvAsMillis("JUDGE0_MAX_BACKOFF_MS", 8000),

			CPUTimeLimit:        getEnvAsFloat("CPU_TIME_LIMIT", 5),
			CPUExtraTime:        getEnvAsFloat("CPU_EXTRA_TIME", 1),
			WallTimeLimit:       getEnvAsFloat("WALL_TIME_LIMIT", 15),
			MemoryLimitKB:       getEnvAsInt("MEMORY_LIMIT", 256000),
			StackLimitKB:        getEnvAsInt("STACK_LIMIT", 64000),
			MaxProcessesThreads: getEnvAsInt("MAX_PROCESSES", 60),
			EnableNetwork:       getEnvAsBool("ENABLE_NETWORK", false),
		},

		Backend: BackendConfig{
			BaseURL:   getEnv("BACKEND_API_URL", "http://localhost:8000/api"),
			Timeout:   getEnvAsMillis("BACKEND_TIMEOUT_MS", 20000),
			AuthToken: getEnv("BACKEND_AUTH_TOKEN", ""),
		},
	}

	cfg.ServerReadTimeout = 10 * time.Second
	// A synchronous batch runs inside one request: its budget plus the failure report must fit.
	cfg.RequestTimeout = cfg.BatchBudget() + cfg.Backend.Timeout + 10*time.Second
	cfg.ServerWriteTimeout = cfg.RequestTimeout + 5*time.Second

	cfg.DBConnStr = "host=" + cfg.DBHost +
		" port=" + cfg.DBPort +
		" user=" + cfg.DBUser +
		" password=" + cfg.DBPassword +
		" dbname=" + cfg.DBName +
		" sslmode=" + cfg.DBSslMode

	return cfg
}

// BatchBudget bounds one batch end to end: liveness probe, batch submission,
// polling, catalog fetch and the results report.
func (c *Config) BatchBudget() time.Duration {
	return c.Judge.ProbeTimeout + c.Judge.HTTPTimeout + c.Judge.BatchTimeout + 2*c.Backend.Timeout
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsMillis(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallbackMs)) * time.Millisecond
}
