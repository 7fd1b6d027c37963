package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir   string
	InboxDir  string
	StorePath string

	LogLevel  string
	LogFormat string

	IdentityThreshold   float64
	VariantThreshold    float64
	SparseCellThreshold int
	MaxScanRows         int
	HeaderLabelCap      int
	ColumnLabelCap      int
	MaxEditDistance     int

	FingerprintWorkers int
	ExtractWorkers     int
	DiscoveryBatchCap  int
	MinFileSizeKB      int
	ModifiedAfter      string

	RegistryBaseURL      string
	RegistryToken        string
	RegistryRateLimitRPS int
	RegistryTimeoutMs    int

	WebIndexURL string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	WatchSources     string
	WatchProvider    string
	WatchLabel       string
	WatchIntervalSec int
	WatchFetchMax    int
	WatchAutoPhases  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DataDir:   getEnv("DATA_DIR", filepath.Join(cwd, "data")),
		InboxDir:  getEnv("INBOX_DIR", filepath.Join(cwd, "data", "inbox")),
		StorePath: getEnv("STORE_PATH", filepath.Join(cwd, "data", "values.db")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		IdentityThreshold:   getEnvFloat("IDENTITY_THRESHOLD", 0.95),
		VariantThreshold:    getEnvFloat("VARIANT_THRESHOLD", 0.80),
		SparseCellThreshold: getEnvInt("SPARSE_CELL_THRESHOLD", 20),
		MaxScanRows:         getEnvInt("MAX_SCAN_ROWS", 500),
		HeaderLabelCap:      getEnvInt("HEADER_LABEL_CAP", 40),
		ColumnLabelCap:      getEnvInt("COLUMN_LABEL_CAP", 64),
		MaxEditDistance:     getEnvInt("MAX_EDIT_DISTANCE", 3),

		FingerprintWorkers: getEnvInt("FINGERPRINT_WORKERS", 4),
		ExtractWorkers:     getEnvInt("EXTRACT_WORKERS", 4),
		DiscoveryBatchCap:  getEnvInt("DISCOVERY_BATCH_CAP", 200),
		MinFileSizeKB:      getEnvInt("MIN_FILE_SIZE_KB", 10),
		ModifiedAfter:      getEnv("MODIFIED_AFTER", ""),

		RegistryBaseURL:      getEnv("REGISTRY_BASE_URL", ""),
		RegistryToken:        getEnv("REGISTRY_TOKEN", ""),
		RegistryRateLimitRPS: getEnvInt("REGISTRY_RATE_LIMIT_RPS", 5),
		RegistryTimeoutMs:    getEnvInt("REGISTRY_TIMEOUT_MS", 30000),

		WebIndexURL: getEnv("WEB_INDEX_URL", ""),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		WatchSources:     getEnv("WATCH_SOURCES", "dir"),
		WatchProvider:    getEnv("WATCH_PROVIDER", "imap"),
		WatchLabel:       getEnv("WATCH_LABEL", "INBOX"),
		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 60),
		WatchFetchMax:    getEnvInt("WATCH_FETCH_MAX", 20),
		WatchAutoPhases:  getEnvBool("WATCH_AUTO_PHASES", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
