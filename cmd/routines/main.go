package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"routines/runtime-go/pkg/driver"
	"routines/runtime-go/pkg/engine"
	"routines/runtime-go/pkg/logging"
	"routines/runtime-go/pkg/registry"
	"routines/runtime-go/pkg/store"
)

const cliToolVersion = "routines 0.1.0-dev"

// errSilent marks failures that were already reported to the user.
var errSilent = errors.New("reported")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// cli carries the streams and global flags every command shares.
type cli struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	logLevel   string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "routines",
		Short:         "Run suspendable routines",
		Version:       cliToolVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", driver.ConfigFileName, "path to runtime.yml")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		c.runCommand(),
		c.resumeCommand(),
		c.listCommand(),
		c.checkCommand(),
		c.stackCommand(),
		c.cancelCommand(),
		c.fetchCommand(),
		c.mcpCommand(),
	)
	return root
}

// env is everything a command needs to talk to the engine.
type env struct {
	cfg      *driver.Config
	logger   zerolog.Logger
	store    store.Store
	registry *registry.Registry
}

func (e *env) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

func (c *cli) loadConfig() (*driver.Config, zerolog.Logger, error) {
	cfg, err := driver.LoadConfigOrDefault(c.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := cfg.Log.Level
	if c.logLevel != "" {
		level = c.logLevel
	}
	logger, err := logging.New(c.stderr, level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// open loads configuration, the registry and the frame store.
func (c *cli) open() (*env, error) {
	cfg, logger, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	if err := driver.LoadRegistry(cfg, reg); err != nil {
		return nil, err
	}
	if cfg.Store.Path != "" && cfg.Store.Backend == store.BackendSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, err
		}
	}
	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("backend", cfg.Store.Backend).Int("routines", len(reg.List())).Msg("runtime loaded")
	return &env{cfg: cfg, logger: logger, store: st, registry: reg}, nil
}

func (e *env) engine(sink engine.Sink) *engine.Engine {
	return engine.New(e.registry, e.store,
		engine.WithLogger(e.logger),
		engine.WithSink(sink),
		engine.WithMaxSteps(e.cfg.MaxSteps),
	)
}
