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

var (
	ErrMissingWebhook  = errors.New("SLACK_WEBHOOK_URL is required for the slack channel")
	ErrMissingTelegram = errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required for the telegram channel")
)

const (
	SourceFile   = "file"
	SourceDocker = "docker"

	ChannelSlack    = "slack"
	ChannelTelegram = "telegram"
)

type Config struct {
	LogFile         string
	LogSource       string
	LogFromStart    bool
	DockerSocket    string
	DockerContainer string

	NotifyChannel    string
	SlackWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string
	NotifyTimeout    time.Duration

	Environment string
	ActivePool  string
	Pools       []string

	// Addr is the status API listener. Its maintenance toggle has no auth,
	// so the default binds loopback only.
	Addr          string
	DataDir       string
	DBPath        string
	RetentionDays int
	LogLevel      string

	// ConfigFile is the optional YAML overlay for the runtime tunables.
	ConfigFile string
	Runtime    Runtime
}

// Load reads an optional dotenv file, then the process environment, then the
// YAML overlay named by POOLWATCH_CONFIG.
func Load() (Config, error) {
	envFile := getenv("POOLWATCH_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var env envReader
	dataDir := getenv("APP_DATA_DIR", "./data")
	cfg := Config{
		LogFile:          getenv("LOG_FILE", "/var/log/nginx/access.log"),
		LogSource:        strings.ToLower(getenv("LOG_SOURCE", SourceFile)),
		LogFromStart:     env.Bool("LOG_FROM_START", false),
		DockerSocket:     getenv("DOCKER_SOCKET", "/var/run/docker.sock"),
		DockerContainer:  getenv("DOCKER_CONTAINER", "nginx"),
		NotifyChannel:    strings.ToLower(getenv("NOTIFY_CHANNEL", ChannelSlack)),
		SlackWebhookURL:  strings.TrimSpace(os.Getenv("SLACK_WEBHOOK_URL")),
		TelegramBotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:   strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		NotifyTimeout:    env.Duration("NOTIFY_TIMEOUT", 10*time.Second),
		Environment:      getenv("ENVIRONMENT", "production"),
		ActivePool:       strings.ToLower(strings.TrimSpace(os.Getenv("ACTIVE_POOL"))),
		Pools:            splitList(getenv("POOLS", "blue,green")),
		Addr:             getenv("APP_ADDR", "127.0.0.1:9100"),
		DataDir:          dataDir,
		DBPath:           getenv("APP_DB_PATH", dataDir+"/poolwatch.db"),
		RetentionDays:    env.Int("APP_RETENTION_DAYS", 14),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		ConfigFile:       os.Getenv("POOLWATCH_CONFIG"),
	}
	if err := env.Err(); err != nil {
		return Config{}, err
	}
	rt, err := LoadRuntime(cfg.ConfigFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Runtime = rt
	return cfg, nil
}

// Validate reports startup misconfiguration. The watcher refuses to run rather
// than silently disabling alerting.
func (c Config) Validate() error {
	switch c.NotifyChannel {
	case ChannelSlack:
		if c.SlackWebhookURL == "" {
			return ErrMissingWebhook
		}
	case ChannelTelegram:
		if c.TelegramBotToken == "" || c.TelegramChatID == "" {
			return ErrMissingTelegram
		}
	default:
		return fmt.Errorf("unsupported NOTIFY_CHANNEL %q", c.NotifyChannel)
	}
	switch c.LogSource {
	case SourceFile:
		if c.LogFile == "" {
			return errors.New("LOG_FILE is required for the file source")
		}
	case SourceDocker:
		if c.DockerContainer == "" {
			return errors.New("DOCKER_CONTAINER is required for the docker source")
		}
	default:
		return fmt.Errorf("unsupported LOG_SOURCE %q", c.LogSource)
	}
	if c.ActivePool != "" && len(c.Pools) > 0 && !contains(c.Pools, c.ActivePool) {
		return fmt.Errorf("ACTIVE_POOL %q is not one of %v", c.ActivePool, c.Pools)
	}
	if c.NotifyTimeout <= 0 {
		return errors.New("NOTIFY_TIMEOUT must be positive")
	}
	return c.Runtime.Validate()
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// envReader parses typed variables and collects every malformed value, so a
// typo fails startup instead of falling back to the default.
type envReader struct {
	errs []error
}

func (e *envReader) Err() error {
	return errors.Join(e.errs...)
}

func (e *envReader) invalid(k, v string) {
	e.errs = append(e.errs, fmt.Errorf("%s: invalid value %q", k, v))
}

func (e *envReader) Int(k string, d int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(k, v)
		return d
	}
	return n
}

func (e *envReader) Float(k string, d float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.invalid(k, v)
		return d
	}
	return f
}

func (e *envReader) Duration(k string, d time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		e.invalid(k, v)
		return d
	}
	return dur
}

func (e *envReader) Bool(k string, d bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	switch v {
	case "":
		return d
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	e.invalid(k, v)
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
