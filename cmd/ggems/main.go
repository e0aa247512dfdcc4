package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ggems/ggems/internal/config"
	"github.com/ggems/ggems/internal/logger"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// state is filled by the Before hook and shared by the commands.
type state struct {
	configPath string
	hold       bool

	cfg *config.Config
	log *zap.Logger
}

func main() {
	// Environment from .env must be visible before the flags are parsed.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	st := &state{}
	return &cli.App{
		Name:  "ggems",
		Usage: "Inspect and exercise the compute devices used by GGEMS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Value:       "config.yaml",
				Usage:       "Path to the configuration file",
				EnvVars:     []string{"GGEMS_CONFIG"},
				Destination: &st.configPath,
			},
			&cli.BoolFlag{
				Name:        "hold",
				Usage:       "Keep the metrics server up after the command until interrupted",
				EnvVars:     []string{"GGEMS_HOLD"},
				Destination: &st.hold,
			},
		},
		Before: func(c *cli.Context) error {
			return st.load(c.IsSet("config"))
		},
		After: func(c *cli.Context) error {
			if st.log != nil {
				_ = st.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			devicesCommand(st),
			selftestCommand(st),
			compileCommand(st),
			initCommand(),
		},
	}
}

// load reads the configuration and builds the logger. A missing default
// config file falls back to config.Default; an explicit path must exist.
func (st *state) load(explicit bool) error {
	cfg, err := config.LoadConfig(st.configPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg = config.Default()
	default:
		return fmt.Errorf("failed to load config: %w", err)
	}
	st.cfg = cfg

	zapLogger, err := logger.NewWithFile(cfg.Logger.Verbosity, cfg.Logger.File)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	st.log = zapLogger.Named("cli")
	return nil
}
