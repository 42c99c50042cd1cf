package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables. Flags override them.
const (
	envPlatform         = "REBIND_PLATFORM"
	envRules            = "REBIND_RULES"
	envAssumeCompatible = "REBIND_ASSUME_COMPATIBLE"
	envLogLevel         = "REBIND_LOG_LEVEL"
)

type config struct {
	entry            string
	platformFile     string
	rulesFile        string
	logLevel         string
	call             string
	callArgs         []uint64
	assumeCompatible bool
	dump             bool
	printPlatform    bool
}

// loadConfig reads .env, then the environment, then flags.
func loadConfig(args []string, stderr io.Writer) (*config, error) {
	_ = godotenv.Load()

	cfg := &config{
		platformFile: os.Getenv(envPlatform),
		rulesFile:    os.Getenv(envRules),
		logLevel:     os.Getenv(envLogLevel),
	}
	if cfg.logLevel == "" {
		cfg.logLevel = "warn"
	}
	if v := os.Getenv(envAssumeCompatible); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envAssumeCompatible, err)
		}
		cfg.assumeCompatible = b
	}

	fs := flag.NewFlagSet("rebind", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.platformFile, "platform", cfg.platformFile, "Platform map YAML (default: wasi_unstable -> wasi_snapshot_preview1)")
	fs.StringVar(&cfg.rulesFile, "rules", cfg.rulesFile, "Rewrite rules YAML")
	fs.StringVar(&cfg.logLevel, "log", cfg.logLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.call, "call", "", "Exported function to call after loading")
	argList := fs.String("args", "", "Integer arguments for -call (comma-separated)")
	fs.BoolVar(&cfg.assumeCompatible, "assume-compatible", cfg.assumeCompatible, "Warn instead of failing on incompatible instructions")
	fs.BoolVar(&cfg.dump, "dump", false, "Dump the load report structure")
	fs.BoolVar(&cfg.printPlatform, "print-platform", false, "Print the effective platform map as YAML and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: rebind [flags] <entry.wasm>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.entry = fs.Arg(0)
	if cfg.entry == "" && !cfg.printPlatform {
		fs.Usage()
		return nil, fmt.Errorf("missing entry module")
	}

	if *argList != "" {
		for _, a := range strings.Split(*argList, ",") {
			v, err := strconv.ParseInt(strings.TrimSpace(a), 0, 64)
			if err != nil {
				return nil, fmt.Errorf("-args %q: %w", a, err)
			}
			cfg.callArgs = append(cfg.callArgs, uint64(v))
		}
	}

	return cfg, nil
}

// newLogger builds a console logger writing to stderr at level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
