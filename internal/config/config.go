package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultLogName is the duplicates log written when no output path is set.
const DefaultLogName = "log.txt"

// ScanCfg controls the deduplication run.
type ScanCfg struct {
	Root      string `mapstructure:"root"`
	ChunkSize int    `mapstructure:"chunk_size"`
	Workers   int    `mapstructure:"workers"`
	DryRun    bool   `mapstructure:"dry_run"`
}

// OutputCfg controls prompts, console output and the duplicates log.
type OutputCfg struct {
	NoInputs bool   `mapstructure:"no_inputs"`
	Quiet    bool   `mapstructure:"quiet"`    // no duplicates log
	LogPath  string `mapstructure:"log_path"` // empty means DefaultLogName in cwd
	Verbose  bool   `mapstructure:"verbose"`
	Progress bool   `mapstructure:"progress"`
	NoColor  bool   `mapstructure:"no_color"`
}

// LoggingCfg controls output formatting and level.
type LoggingCfg struct {
	Level  string `mapstructure:"level"`  // debug|info|warn|error
	Format string `mapstructure:"format"` // json|console
}

// JournalCfg controls the SQLite deletion journal.
type JournalCfg struct {
	Enabled       bool   `mapstructure:"enabled"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// S3Cfg controls upload of run artifacts.
type S3Cfg struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Bucket     string `mapstructure:"bucket"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	Prefix     string `mapstructure:"prefix"`
	MaxRetries int    `mapstructure:"max_retries"`
	BackoffMS  int    `mapstructure:"backoff_ms"`
}

// Config is the root configuration.
type Config struct {
	Scan    ScanCfg    `mapstructure:"scan"`
	Output  OutputCfg  `mapstructure:"output"`
	Logging LoggingCfg `mapstructure:"logging"`
	Journal JournalCfg `mapstructure:"journal"`
	S3      S3Cfg      `mapstructure:"s3"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"no-inputs":  "output.no_inputs",
	"quiet":      "output.quiet",
	"output":     "output.log_path",
	"verbose":    "output.verbose",
	"progress":   "output.progress",
	"no-color":   "output.no_color",
	"workers":    "scan.workers",
	"chunk-size": "scan.chunk_size",
	"dry-run":    "scan.dry_run",
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"journal":    "journal.sqlite_path",
}

// setDefaults registers every key; AutomaticEnv only fills keys viper knows.
func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.root", "")
	v.SetDefault("scan.chunk_size", 64*1024)
	v.SetDefault("scan.workers", 1)
	v.SetDefault("scan.dry_run", false)

	v.SetDefault("output.no_inputs", false)
	v.SetDefault("output.quiet", false)
	v.SetDefault("output.log_path", "")
	v.SetDefault("output.verbose", false)
	v.SetDefault("output.progress", false)
	v.SetDefault("output.no_color", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.sqlite_path", "./data/dupremover.db")
	v.SetDefault("journal.retention_days", 0)

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("s3.prefix", "dupremover")
	v.SetDefault("s3.max_retries", 3)
	v.SetDefault("s3.backoff_ms", 500)
}

// Load reads config from an optional YAML file, DUPREMOVER_* environment
// variables and, when flags is non-nil, explicitly set command-line flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DUPREMOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		// --journal implies journal.enabled.
		if f := flags.Lookup("journal"); f != nil && f.Changed {
			v.Set("journal.enabled", true)
		}
	}

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return c, err
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be >= 1, got %d", c.Scan.Workers)
	}
	if c.Scan.ChunkSize < 0 {
		return fmt.Errorf("scan.chunk_size must be >= 0, got %d", c.Scan.ChunkSize)
	}
	if c.S3.Enabled && (c.S3.Endpoint == "" || c.S3.Bucket == "") {
		return fmt.Errorf("s3.endpoint and s3.bucket are required when s3.enabled is set")
	}
	return nil
}

// LogLocation is the resolved duplicates log path.
type LogLocation struct {
	Path    string // absolute path
	Display string // what to show the user
	Set     bool   // whether the user chose the path
}

// ResolveLogPath resolves the duplicates log against cwd. A user-chosen path
// is displayed in full; the default is displayed by file name only.
func ResolveLogPath(out OutputCfg, cwd string) LogLocation {
	p := out.LogPath
	set := p != ""
	if !set {
		p = DefaultLogName
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	p = filepath.Clean(p)
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		p = filepath.Join(resolved, filepath.Base(p))
	}
	loc := LogLocation{Path: p, Display: filepath.Base(p), Set: set}
	if set {
		loc.Display = p
	}
	return loc
}

// BackoffDuration computes a linear backoff.
func BackoffDuration(ms int, attempt int) time.Duration {
	if ms <= 0 {
		ms = 250
	}
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(ms*attempt) * time.Millisecond
}
