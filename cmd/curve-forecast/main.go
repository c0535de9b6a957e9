package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/iwvelando/curve-forecast/internal/config"
	"github.com/iwvelando/curve-forecast/internal/forecast"
	"github.com/iwvelando/curve-forecast/internal/optimizer"
	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
	"github.com/iwvelando/curve-forecast/pkg/output"
	"github.com/iwvelando/curve-forecast/pkg/validation"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Log level: the CLI override wins over the configuration
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info" // Default to info level
	}

	// Parse log level
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	// Output format
	format := loggingConfig.Format
	if format == "" {
		format = "json" // Default to JSON for production
	}

	// Configure encoder
	var config zap.Config
	switch format {
	case "console":
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	case "json":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	// stderr by default; stdout carries the report
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	// Configure output file if specified
	if loggingConfig.OutputFile != "" {
		// Make sure the log directory exists
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		// Fail early if the file cannot be opened for appending
		if file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		} else {
			_ = file.Close()
		}

		config.OutputPaths = []string{loggingConfig.OutputFile}
		config.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return config.Build()
}

// buildReport resolves the configuration, runs the fits when enabled and
// renders the forecast report.
func buildReport(ctx context.Context, logger *zap.Logger, conf *config.Configuration, forceFit bool) (*forecast.Report, error) {
	resolved, err := conf.Resolve()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration: %w", err)
	}
	if forceFit {
		resolved.Fit.Enabled = true
	}

	var fits []optimization.Summary
	var notes []string
	if resolved.Fit.Enabled {
		runner, err := optimizer.NewRunner(logger, resolved)
		if err != nil {
			return nil, err
		}
		res, err := runner.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fit curves: %w", err)
		}
		if notes, err = res.Apply(resolved); err != nil {
			return nil, err
		}
		fits = res.Summaries()
	}

	report, err := forecast.GetForecast(logger, resolved, fits)
	if err != nil {
		return nil, fmt.Errorf("failed to compute forecast: %w", err)
	}
	report.Notes = append(notes, report.Notes...)
	return report, nil
}

func main() {
	// Flags first, so the config location is known
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, xlsx")
	outputFile := flag.String("output", "", "output file path (required for xlsx, stdout otherwise)")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	forceFit := flag.Bool("fit", false, "fit the configured models even when fit.enabled is false")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load .env\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}

	// The configuration also carries the logging settings
	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Flags override the configured output target
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	path := conf.Output.File
	if *outputFile != "" {
		path = *outputFile
	}

	if err := validation.ValidateOutputTarget(outputFormat, path); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	// Fit, apply and render
	report, err := buildReport(context.Background(), logger, conf, *forceFit)
	if err != nil {
		logger.Fatal("failed to build report",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	out := os.Stdout
	if path != "" && outputFormat != constants.OutputFormatXLSX {
		f, err := os.Create(path)
		if err != nil {
			logger.Fatal("failed to create output file",
				zap.String("op", "main"),
				zap.String("path", path),
				zap.Error(err),
			)
		}
		defer func() {
			_ = f.Close()
		}()
		out = f
	}

	if err := output.Write(outputFormat, out, path, report); err != nil {
		logger.Fatal("failed to write report",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}
