package app

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr      string
	MongoURI      string
	MongoDatabase string
	LogLevel      string
	LogFormat     string

	DisplayName          string
	DiscoveryPort        int
	DiscoveryIntervalSec int
	TransferPort         int
	SaveDir              string
	BufferSizeBytes      int
	IdleTimeoutSec       int
	MaxWorkers           int
	MinChunkBytes        int64
	MultiStreamThreshold int64
	DecisionTimeoutSec   int
	MaxBandwidthBytes    int64 // bytes/sec per session; 0 = unlimited
	AutoAccept           bool

	CORSAllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "lanshare"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DisplayName:          getEnv("DISPLAY_NAME", defaultDisplayName()),
		DiscoveryPort:        int(getEnvInt64("DISCOVERY_PORT", 5000)),
		DiscoveryIntervalSec: int(getEnvInt64("DISCOVERY_INTERVAL_SEC", 5)),
		TransferPort:         int(getEnvInt64("TRANSFER_PORT", 12345)),
		SaveDir:              getEnv("SAVE_DIR", "received"),
		BufferSizeBytes:      int(getEnvInt64("BUFFER_SIZE_BYTES", 64<<10)),
		IdleTimeoutSec:       int(getEnvInt64("IDLE_TIMEOUT_SEC", 30)),
		MaxWorkers:           int(getEnvInt64("MAX_WORKERS", 4)),
		MinChunkBytes:        getEnvInt64("MIN_CHUNK_BYTES", 100<<20),
		MultiStreamThreshold: getEnvInt64("MULTI_STREAM_THRESHOLD_BYTES", 200<<20),
		DecisionTimeoutSec:   int(getEnvInt64("DECISION_TIMEOUT_SEC", 30)),
		MaxBandwidthBytes:    getEnvInt64("MAX_BANDWIDTH_BYTES_PER_SEC", 0),
		AutoAccept:           getEnvBool("AUTO_ACCEPT", false),

		CORSAllowedOrigins: splitCommaList(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func defaultDisplayName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "lanshare"
	}
	return host
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitCommaList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
