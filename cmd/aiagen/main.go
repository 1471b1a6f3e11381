package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"aiaforge/internal/aia/format"
	"aiaforge/internal/aia/generator"
	"aiaforge/internal/config"
	"aiaforge/internal/llm"
	"aiaforge/internal/logging"
	"aiaforge/internal/publish"
	"aiaforge/internal/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err != nil {
		var exitErr *config.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run writes the archive path (and the download URL when publishing) to
// outW. Logs go to errW.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	cfg, help, err := config.Load(args, errW)
	if err != nil {
		return err
	}
	if help {
		return nil
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, errW)

	spec, err := loadSpec(ctx, cfg, log)
	if err != nil {
		return err
	}

	opts, err := format.Lookup(cfg.Format)
	if err != nil {
		return err
	}
	opts.Seed = cfg.Seed
	opts.User = cfg.User

	gen, err := generator.New(opts, generator.WithLogger(log), generator.WithStrict(cfg.Strict))
	if err != nil {
		return err
	}
	res := <-gen.Start(ctx, spec, cfg.OutDir)
	if res.Err != nil {
		return res.Err
	}
	fmt.Fprintln(outW, res.Path)

	if !cfg.Publish {
		return nil
	}
	pub, err := publish.NewS3Publisher(publish.S3Config{
		Endpoint:  cfg.Artifact.Endpoint,
		Region:    cfg.Artifact.Region,
		AccessKey: cfg.Artifact.AccessKey,
		SecretKey: cfg.Artifact.SecretKey,
		Bucket:    cfg.Artifact.Bucket,
		Prefix:    cfg.Artifact.Prefix,
		UseSSL:    cfg.Artifact.UseSSL,
	}, log)
	if err != nil {
		return err
	}
	url, err := pub.Publish(ctx, res.Path)
	if err != nil {
		return err
	}
	fmt.Fprintln(outW, url)
	return nil
}

func loadSpec(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*types.ApplicationSpec, error) {
	if cfg.SpecPath != "" {
		raw, err := os.ReadFile(cfg.SpecPath)
		if err != nil {
			return nil, fmt.Errorf("read spec: %w", err)
		}
		spec, err := types.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode spec %s: %w", cfg.SpecPath, err)
		}
		return spec, nil
	}

	client, err := newClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return llm.NewProducer(client, log).Produce(ctx, cfg.Prompt, cfg.ImagePath)
}

func newClient(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (llm.LLMClient, error) {
	if cfg.FakeLLM {
		return llm.Wrap(llm.NewFakeClient(), llm.WithLogging(log)), nil
	}
	gc, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, log)
	if err != nil {
		return nil, err
	}
	rps := cfg.Gemini.RPS
	if rps <= 0 {
		rps = 1
	}
	return llm.Wrap(gc,
		llm.WithLogging(log),
		llm.Cache(64),
		llm.Retry(3, 500*time.Millisecond),
		llm.RateLimit(rps, cfg.Gemini.Burst),
	), nil
}
