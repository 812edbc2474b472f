package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/binlog-scrub/internal/config"
	"github.com/raaihank/binlog-scrub/internal/logger"
	"github.com/raaihank/binlog-scrub/internal/runner"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		inputPath   = flag.String("input", "", "Build-log container to redact")
		outputPath  = flag.String("output", "", "Destination path for the redacted container")
		overwrite   = flag.Bool("overwrite", false, "Replace the destination file if it exists")
		identify    = flag.Bool("identify", false, "Suffix each redaction marker with its match ordinal")
		noBuiltins  = flag.Bool("no-builtin-patterns", false, "Disable the built-in secret heuristics")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("binscrub %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(int(runner.CodeInvalidOptions))
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(int(runner.CodeInvalidOptions))
	}
	defer log.Sync()

	log.Info("Starting binscrub",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("input", *inputPath),
		zap.String("output", *outputPath),
	)

	opts := config.Options{
		InputPath:              *inputPath,
		OutputFileName:         *outputPath,
		Overwrite:              *overwrite,
		DisableBuiltinPatterns: *noBuiltins,
		IdentifyReplacements:   *identify,
		ExplicitPatterns:       flag.Args(),
	}

	// Cancellation takes effect between records; a first Ctrl-C abandons the
	// run cleanly, the temp file is removed, and the destination is untouched.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := runner.New(cfg, log).Execute(ctx, opts)
	if code != runner.CodeSuccess {
		log.Error("Run failed", zap.Stringer("code", code))
	}
	os.Exit(int(code))
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] [pattern ...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nRedacts sensitive values from a build-log container.\n")
	fmt.Fprintf(os.Stderr, "Positional arguments are explicit literal patterns to redact.\n\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --input build.blsc --output build.redacted.blsc\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --input build.blsc --output out.blsc --identify hunter2 s3cr3t\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --input build.blsc --output out.blsc --no-builtin-patterns MY_TOKEN\n", os.Args[0])
}
