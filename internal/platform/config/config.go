package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	TempRoot    string `env:"TEMP_ROOT" default:"./temp"`
	OutputDir   string `env:"OUTPUT_DIR" default:"./output"`
	TemplateAPK string `env:"TEMPLATE_APK" default:"./tools/base.apk"`

	JavaBin          string        `env:"JAVA_BIN" default:"java"`
	ApktoolJar       string        `env:"APKTOOL_JAR" default:"./apktool.jar"`
	SignerJar        string        `env:"SIGNER_JAR" default:"./uber-apk-signer.jar"`
	ApktoolExtraArgs string        `env:"APKTOOL_EXTRA_ARGS"`
	SignerExtraArgs  string        `env:"SIGNER_EXTRA_ARGS"`
	ToolTimeout      time.Duration `env:"TOOL_TIMEOUT" default:"0s"`

	KeystorePath     string `env:"KEYSTORE_PATH" default:"./tools/release.keystore"`
	KeystoreAlias    string `env:"KEYSTORE_ALIAS"`
	KeystorePassword string `env:"KEYSTORE_PASSWORD"`
	KeyPassword      string `env:"KEY_PASSWORD"`

	MaxUploadSize     string  `env:"MAX_UPLOAD_SIZE" default:"100M"`
	GenerateRateLimit float64 `env:"GENERATE_RATE_LIMIT" default:"1"`
	GenerateRateBurst int     `env:"GENERATE_RATE_BURST" default:"5"`

	OutputRetention     time.Duration `env:"OUTPUT_RETENTION" default:"24h"`
	OutputSweepSchedule string        `env:"OUTPUT_SWEEP_SCHEDULE" default:"@every 10m"`

	VerifyArtifact        bool `env:"VERIFY_ARTIFACT" default:"true"`
	AllowUnsignedFallback bool `env:"ALLOW_UNSIGNED_FALLBACK" default:"true"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApktoolArgs returns APKTOOL_EXTRA_ARGS split with shell quoting rules.
func (c *Config) ApktoolArgs() []string {
	args, _ := shellquote.Split(c.ApktoolExtraArgs)
	return args
}

// SignerArgs returns SIGNER_EXTRA_ARGS split with shell quoting rules.
func (c *Config) SignerArgs() []string {
	args, _ := shellquote.Split(c.SignerExtraArgs)
	return args
}

func validate(cfg *Config) error {
	required := map[string]string{
		"TEMP_ROOT":    cfg.TempRoot,
		"OUTPUT_DIR":   cfg.OutputDir,
		"TEMPLATE_APK": cfg.TemplateAPK,
		"JAVA_BIN":     cfg.JavaBin,
		"APKTOOL_JAR":  cfg.ApktoolJar,
		"SIGNER_JAR":   cfg.SignerJar,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if overlaps(cfg.TempRoot, cfg.OutputDir) {
		return errors.New("TEMP_ROOT and OUTPUT_DIR must be separate directories")
	}

	if cfg.GenerateRateLimit <= 0 {
		return errors.New("GENERATE_RATE_LIMIT must be positive")
	}
	if cfg.GenerateRateBurst < 1 {
		return errors.New("GENERATE_RATE_BURST must be at least 1")
	}
	if cfg.ToolTimeout < 0 {
		return errors.New("TOOL_TIMEOUT must not be negative")
	}
	if cfg.OutputRetention < 0 {
		return errors.New("OUTPUT_RETENTION must not be negative")
	}

	if _, err := shellquote.Split(cfg.ApktoolExtraArgs); err != nil {
		return fmt.Errorf("APKTOOL_EXTRA_ARGS is not valid shell syntax: %w", err)
	}
	if _, err := shellquote.Split(cfg.SignerExtraArgs); err != nil {
		return fmt.Errorf("SIGNER_EXTRA_ARGS is not valid shell syntax: %w", err)
	}

	return nil
}

// overlaps reports whether a and b are the same directory or one contains the other.
func overlaps(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return within(absA, absB) || within(absB, absA)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
