package app

import (
	"os"
	"testing"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	// Clear all env vars that LoadConfig reads so we get pure defaults.
	envVars := []string{
		"HTTP_ADDR", "MONGO_URI", "MONGO_DB",
		"LOG_LEVEL", "LOG_FORMAT", "DISPLAY_NAME",
		"DISCOVERY_PORT", "DISCOVERY_INTERVAL_SEC", "TRANSFER_PORT",
		"SAVE_DIR", "BUFFER_SIZE_BYTES", "IDLE_TIMEOUT_SEC",
		"MAX_WORKERS", "MIN_CHUNK_BYTES", "MULTI_STREAM_THRESHOLD_BYTES",
		"DECISION_TIMEOUT_SEC", "MAX_BANDWIDTH_BYTES_PER_SEC", "AUTO_ACCEPT",
		"CORS_ALLOWED_ORIGINS",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"MongoURI", cfg.MongoURI, "mongodb://localhost:27017"},
		{"MongoDatabase", cfg.MongoDatabase, "lanshare"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"DiscoveryPort", cfg.DiscoveryPort, 5000},
		{"DiscoveryIntervalSec", cfg.DiscoveryIntervalSec, 5},
		{"TransferPort", cfg.TransferPort, 12345},
		{"SaveDir", cfg.SaveDir, "received"},
		{"BufferSizeBytes", cfg.BufferSizeBytes, 64 << 10},
		{"IdleTimeoutSec", cfg.IdleTimeoutSec, 30},
		{"MaxWorkers", cfg.MaxWorkers, 4},
		{"MinChunkBytes", cfg.MinChunkBytes, int64(100 << 20)},
		{"MultiStreamThreshold", cfg.MultiStreamThreshold, int64(200 << 20)},
		{"DecisionTimeoutSec", cfg.DecisionTimeoutSec, 30},
		{"MaxBandwidthBytes", cfg.MaxBandwidthBytes, int64(0)},
		{"AutoAccept", cfg.AutoAccept, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	if cfg.DisplayName == "" {
		t.Error("DisplayName must default to a non-empty value")
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins: got %v, want nil/empty", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"HTTP_ADDR":                    ":9090",
		"MONGO_URI":                    "mongodb://remote:27017",
		"MONGO_DB":                     "mydb",
		"LOG_LEVEL":                    "DEBUG",
		"LOG_FORMAT":                   "JSON",
		"DISPLAY_NAME":                 "office-laptop",
		"DISCOVERY_PORT":               "6000",
		"DISCOVERY_INTERVAL_SEC":       "10",
		"TRANSFER_PORT":                "23456",
		"SAVE_DIR":                     "/srv/incoming",
		"BUFFER_SIZE_BYTES":            "131072",
		"IDLE_TIMEOUT_SEC":             "60",
		"MAX_WORKERS":                  "8",
		"MIN_CHUNK_BYTES":              "52428800",
		"MULTI_STREAM_THRESHOLD_BYTES": "104857600",
		"DECISION_TIMEOUT_SEC":         "45",
		"MAX_BANDWIDTH_BYTES_PER_SEC":  "1048576",
		"AUTO_ACCEPT":                  "true",
		"CORS_ALLOWED_ORIGINS":         "http://localhost:3000, https://example.com",
	})

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":9090"},
		{"MongoURI", cfg.MongoURI, "mongodb://remote:27017"},
		{"MongoDatabase", cfg.MongoDatabase, "mydb"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"DisplayName", cfg.DisplayName, "office-laptop"},
		{"DiscoveryPort", cfg.DiscoveryPort, 6000},
		{"DiscoveryIntervalSec", cfg.DiscoveryIntervalSec, 10},
		{"TransferPort", cfg.TransferPort, 23456},
		{"SaveDir", cfg.SaveDir, "/srv/incoming"},
		{"BufferSizeBytes", cfg.BufferSizeBytes, 131072},
		{"IdleTimeoutSec", cfg.IdleTimeoutSec, 60},
		{"MaxWorkers", cfg.MaxWorkers, 8},
		{"MinChunkBytes", cfg.MinChunkBytes, int64(52428800)},
		{"MultiStreamThreshold", cfg.MultiStreamThreshold, int64(104857600)},
		{"DecisionTimeoutSec", cfg.DecisionTimeoutSec, 45},
		{"MaxBandwidthBytes", cfg.MaxBandwidthBytes, int64(1048576)},
		{"AutoAccept", cfg.AutoAccept, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	wantOrigins := []string{"http://localhost:3000", "https://example.com"}
	if len(cfg.CORSAllowedOrigins) != len(wantOrigins) {
		t.Fatalf("CORSAllowedOrigins: got %d entries, want %d", len(cfg.CORSAllowedOrigins), len(wantOrigins))
	}
	for i, got := range cfg.CORSAllowedOrigins {
		if got != wantOrigins[i] {
			t.Errorf("CORSAllowedOrigins[%d]: got %q, want %q", i, got, wantOrigins[i])
		}
	}
}

func TestGetEnvInt64InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int64
		want     int64
	}{
		{"empty string", "", 42, 42},
		{"not a number", "abc", 42, 42},
		{"negative number", "-5", 42, 42},
		{"zero", "0", 42, 0},
		{"valid positive", "100", 42, 100},
		{"whitespace around number", "  50  ", 42, 50},
		{"float", "3.14", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envVal)
			got := getEnvInt64("TEST_INT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvInt64(%q, %d) = %d, want %d", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback bool
		want     bool
	}{
		{"empty uses fallback", "", true, true},
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"yes", "YES", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"garbage uses fallback", "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_VAR", tt.envVal)
			if got := getEnvBool("TEST_BOOL_VAR", tt.fallback); got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestSplitCommaList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", nil},
		{"whitespace only", "   ", nil},
		{"single value", "http://localhost:3000", []string{"http://localhost:3000"}},
		{"multiple values", "a,b,c", []string{"a", "b", "c"}},
		{"values with spaces", " a , b , c ", []string{"a", "b", "c"}},
		{"trailing comma", "a,b,", []string{"a", "b"}},
		{"empty entries filtered", "a,,b,,c", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitCommaList(tt.input)
			if tt.want == nil {
				if got != nil {
					t.Errorf("splitCommaList(%q) = %v, want nil", tt.input, got)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("splitCommaList(%q) returned %d elements, want %d", tt.input, len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("splitCommaList(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLogLevelCaseInsensitive(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg := LoadConfig()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "debug")
	}

	t.Setenv("LOG_LEVEL", "Warn")
	cfg = LoadConfig()
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "warn")
	}
}
