// Package config resolves CLI flags, environment variables and an optional
// .env file into one Config. Flags win over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"aiaforge/internal/aia/format"
	"aiaforge/internal/logging"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func usageErr(msg string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(msg, args...)}
}

type Config struct {
	SpecPath  string
	Prompt    string
	ImagePath string
	OutDir    string
	Format    string
	Seed      int64
	User      string
	Strict    bool
	Publish   bool
	FakeLLM   bool

	LogLevel  string
	LogFormat string

	Gemini   GeminiConfig
	Artifact ArtifactConfig
}

type GeminiConfig struct {
	APIKey string
	Model  string
	RPS    float64
	Burst  int
}

type ArtifactConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Load parses args. It returns (nil, true, nil) when help was requested.
func Load(args []string, output io.Writer) (*Config, bool, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("aiagen", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
aiagen - generate MIT App Inventor project archives (.aia).

Usage:
  aiagen -spec app.json [options]
  aiagen -prompt "a tip calculator" [-image mockup.png] [options]

Options:
`)
		fs.PrintDefaults()
	}

	specPath := fs.String("spec", "", "Path to an application spec JSON file.")
	prompt := fs.String("prompt", "", "Natural-language app description sent to the model.")
	image := fs.String("image", "", "Reference design image sent with -prompt (JPEG, PNG, WebP, HEIC).")
	outDir := fs.String("out", firstNonEmpty(env("AIA_OUTPUT_DIR"), "out"), "Output directory for the archive.")
	variant := fs.String("format", firstNonEmpty(env("AIA_FORMAT"), format.DefaultVariant), "Archive format variant: "+strings.Join(format.Variants(), ", ")+".")
	seed := fs.Int64("seed", envInt64("AIA_SEED", 0), "Seed for structural id allocation.")
	user := fs.String("user", firstNonEmpty(env("AIA_USER"), "developer"), "Account name used in the package namespace.")
	strict := fs.Bool("strict", false, "Validate member contents, not just member names.")
	publish := fs.Bool("publish", false, "Upload the archive to the configured S3 bucket.")
	fakeLLM := fs.Bool("fake-llm", false, "Use the offline fake model instead of Gemini.")
	model := fs.String("model", firstNonEmpty(env("GEMINI_MODEL"), "gemini-2.5-flash"), "Gemini model id.")
	logLevel := fs.String("log-level", firstNonEmpty(env("LOG_LEVEL"), "info"), "Logging level: debug, info, warn, error.")
	logFormat := fs.String("log-format", firstNonEmpty(env("LOG_FORMAT"), "text"), "Log output format: text or json.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() > 0 {
		return nil, false, usageErr("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := &Config{
		SpecPath:  strings.TrimSpace(*specPath),
		Prompt:    strings.TrimSpace(*prompt),
		ImagePath: strings.TrimSpace(*image),
		OutDir:    strings.TrimSpace(*outDir),
		Format:    strings.ToLower(strings.TrimSpace(*variant)),
		Seed:      *seed,
		User:      strings.TrimSpace(*user),
		Strict:    *strict,
		Publish:   *publish,
		FakeLLM:   *fakeLLM,
		LogLevel:  strings.ToLower(*logLevel),
		LogFormat: strings.ToLower(*logFormat),
		Gemini: GeminiConfig{
			APIKey: env("GEMINI_API_KEY"),
			Model:  strings.TrimSpace(*model),
			RPS:    envFloat(firstNonEmpty(env("LLM_RPS"), env("GEMINI_RPS"))),
			Burst:  envInt(firstNonEmpty(env("LLM_BURST"), env("GEMINI_BURST"))),
		},
		Artifact: loadArtifactConfig(),
	}
	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func (c *Config) validate() error {
	switch {
	case c.SpecPath == "" && c.Prompt == "":
		return usageErr("one of -spec or -prompt is required")
	case c.SpecPath != "" && c.Prompt != "":
		return usageErr("-spec and -prompt are mutually exclusive")
	case c.ImagePath != "" && c.Prompt == "":
		return usageErr("-image needs -prompt")
	case c.OutDir == "":
		return usageErr("-out must not be empty")
	}
	if _, err := format.Lookup(c.Format); err != nil {
		return usageErr("invalid -format: %v", err)
	}
	if !slices.Contains(logging.Levels, c.LogLevel) {
		return usageErr("invalid log-level: must be one of %s", strings.Join(logging.Levels, ", "))
	}
	if !slices.Contains(logging.Formats, c.LogFormat) {
		return usageErr("invalid log-format: must be 'text' or 'json'")
	}
	if c.Prompt != "" && !c.FakeLLM && c.Gemini.APIKey == "" {
		return usageErr("GEMINI_API_KEY is not set (or pass -fake-llm)")
	}
	if c.Publish && c.Artifact.Endpoint == "" {
		return usageErr("-publish needs ARTIFACT_S3_ENDPOINT")
	}
	return nil
}

func loadArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		Endpoint:  env("ARTIFACT_S3_ENDPOINT"),
		Region:    firstNonEmpty(env("ARTIFACT_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(env("ARTIFACT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(env("ARTIFACT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(env("ARTIFACT_S3_BUCKET"), "aia-archives"),
		Prefix:    env("ARTIFACT_S3_PREFIX"),
		UseSSL:    envBool("ARTIFACT_S3_USE_SSL", true),
	}
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envBool(key string, def bool) bool {
	raw := env(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envInt64(key string, def int64) int64 {
	raw := env(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func envInt(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func envFloat(raw string) float64 {
	f, _ := strconv.ParseFloat(raw, 64)
	return f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
