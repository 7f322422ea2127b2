package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Worker        WorkerConfig        `toml:"worker"`
	Queue         QueueConfig         `toml:"queue"`
	Database      DatabaseConfig      `toml:"database"`
	GitHub        GitHubConfig        `toml:"github"`
	Checker       CheckerConfig       `toml:"checker"`
	Log           LogConfig           `toml:"log"`
	Metrics       MetricsConfig       `toml:"metrics"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// WorkerConfig holds the task loop settings
type WorkerConfig struct {
	ScratchDir        string   `toml:"scratch_dir" env:"PEP8BOT_SCRATCH_DIR"`
	SleepInterval     Duration `toml:"sleep_interval" env:"PEP8BOT_SLEEP_INTERVAL"`
	QueueName         string   `toml:"queue_name" env:"PEP8BOT_QUEUE_NAME"`
	KeepWorkingCopies bool     `toml:"keep_working_copies" env:"PEP8BOT_KEEP_WORKING_COPIES"`
}

// QueueConfig holds the Redis connection used for the work queue
type QueueConfig struct {
	RedisAddr     string   `toml:"redis_addr" env:"PEP8BOT_REDIS_ADDR"`
	RedisPassword string   `toml:"redis_password" env:"PEP8BOT_REDIS_PASSWORD"`
	RedisDB       int      `toml:"redis_db" env:"PEP8BOT_REDIS_DB"`
	PollInterval  Duration `toml:"poll_interval" env:"PEP8BOT_QUEUE_POLL_INTERVAL"`
}

// DatabaseConfig holds persistence settings
type DatabaseConfig struct {
	Path string `toml:"path" env:"PEP8BOT_DATABASE_PATH"`
}

// GitHubConfig holds settings for talking to the hosting service
type GitHubConfig struct {
	APIURL        string `toml:"api_url" env:"PEP8BOT_GITHUB_API_URL"`
	WebURL        string `toml:"web_url" env:"PEP8BOT_GITHUB_WEB_URL"`
	StatusContext string `toml:"status_context" env:"PEP8BOT_GITHUB_STATUS_CONTEXT"`
	// TargetURL is a template for the status link, {owner} {repo} and {sha} are replaced
	TargetURL string `toml:"target_url" env:"PEP8BOT_GITHUB_TARGET_URL"`
}

// CheckerConfig holds style checker settings
type CheckerConfig struct {
	Command   string `toml:"command" env:"PEP8BOT_CHECKER_COMMAND"`
	Extension string `toml:"extension" env:"PEP8BOT_CHECKER_EXTENSION"`
	BatchSize int    `toml:"batch_size" env:"PEP8BOT_CHECKER_BATCH_SIZE"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level" env:"PEP8BOT_LOG_LEVEL"`
	Format string `toml:"format" env:"PEP8BOT_LOG_FORMAT"`
}

// MetricsConfig holds the Prometheus endpoint settings. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `toml:"listen" env:"PEP8BOT_METRICS_LISTEN"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook" env:"PEP8BOT_SLACK_WEBHOOK"`
}

// Duration is a time.Duration written as a string ("10s") in config files
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Std().String()), nil
}

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Worker: WorkerConfig{
			ScratchDir:    filepath.Join(home, ".pep8bot", "scratch"),
			SleepInterval: Duration(10 * time.Second),
			QueueName:     "commits",
		},
		Queue: QueueConfig{
			RedisAddr:    "localhost:6379",
			PollInterval: Duration(5 * time.Second),
		},
		Database: DatabaseConfig{
			Path: filepath.Join(home, ".pep8bot", "pep8bot.db"),
		},
		GitHub: GitHubConfig{
			WebURL:        "https://github.com",
			StatusContext: "pep8bot",
		},
		Checker: CheckerConfig{
			Command:   "pycodestyle",
			Extension: ".py",
			BatchSize: 200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
// when the file does not exist. Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFile is like Load but the file must exist
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	return Load(path)
}

func finish(cfg *Config) (*Config, error) {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	// Expand paths
	cfg.Worker.ScratchDir = ExpandPath(cfg.Worker.ScratchDir)
	cfg.Database.Path = ExpandPath(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the worker cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.Worker.ScratchDir == "" {
		errs = append(errs, errors.New("worker.scratch_dir is required"))
	}
	if c.Worker.QueueName == "" {
		errs = append(errs, errors.New("worker.queue_name is required"))
	}
	if c.Worker.SleepInterval < 0 {
		errs = append(errs, errors.New("worker.sleep_interval must not be negative"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Checker.Command == "" {
		errs = append(errs, errors.New("checker.command is required"))
	}
	return errors.Join(errs...)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pep8bot", "config.toml")
}
