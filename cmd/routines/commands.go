package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"routines/runtime-go/pkg/driver"
	"routines/runtime-go/pkg/engine"
	"routines/runtime-go/pkg/interpreter"
	"routines/runtime-go/pkg/runtime"
)

const defaultSession = "default"

// eventPrinter writes messages to stdout and diagnostics to stderr.
func (c *cli) eventPrinter() engine.Sink {
	return engine.SinkFunc(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventMessage:
			fmt.Fprintln(c.stdout, ev.Text)
		case engine.EventInformation:
			fmt.Fprintf(c.stderr, "info: %s\n", ev.Text)
		case engine.EventError:
			fmt.Fprintf(c.stderr, "%s\n", ev.Text)
		}
	})
}

type interactFlags struct {
	session string
	noInput bool
	asJSON  bool
}

func (f *interactFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.session, "session", "s", defaultSession, "session id")
	cmd.Flags().BoolVar(&f.noInput, "no-input", false, "leave the session paused instead of asking on stdin")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "parse answers as JSON instead of plain strings")
}

func (c *cli) runCommand() *cobra.Command {
	var flags interactFlags
	cmd := &cobra.Command{
		Use:   "run ROUTINE [ARG|KEY=VALUE]...",
		Short: "Start a routine",
		Long: "Start a routine. Arguments are parsed as JSON values and fall back to plain strings;\n" +
			"KEY=VALUE arguments bind by parameter name.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs, kwargs, err := parseCallArgs(args[1:])
			if err != nil {
				return err
			}
			return c.interact(commandContext(cmd), &flags, func(ctx context.Context, eng *engine.Engine) (*engine.RoutineResult, error) {
				return eng.Start(ctx, flags.session, args[0], callArgs, kwargs)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func (c *cli) resumeCommand() *cobra.Command {
	var flags interactFlags
	cmd := &cobra.Command{
		Use:   "resume VALUE",
		Short: "Answer the question a paused session is waiting on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := answerValue(args[0], flags.asJSON)
			if err != nil {
				return err
			}
			return c.interact(commandContext(cmd), &flags, func(ctx context.Context, eng *engine.Engine) (*engine.RoutineResult, error) {
				return eng.Resume(ctx, flags.session, value)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

// interact runs first and then keeps answering questions from stdin until the
// session completes, fails, or input runs out.
func (c *cli) interact(ctx context.Context, flags *interactFlags, first func(context.Context, *engine.Engine) (*engine.RoutineResult, error)) error {
	e, err := c.open()
	if err != nil {
		return err
	}
	defer e.Close()
	eng := e.engine(c.eventPrinter())

	res, err := first(ctx, eng)
	if err != nil {
		return err
	}
	var prompt prompter
	defer func() {
		if prompt != nil {
			prompt.Close()
		}
	}()
	for res.Status == interpreter.StatePaused {
		if flags.noInput {
			c.reportPaused(res, flags.session)
			return nil
		}
		if prompt == nil {
			prompt = c.newPrompter()
		}
		answer, err := prompt.Prompt(res.Prompt)
		if errors.Is(err, io.EOF) {
			c.reportPaused(res, flags.session)
			return nil
		}
		if err != nil {
			return err
		}
		value, err := answerValue(answer, flags.asJSON)
		if err != nil {
			fmt.Fprintf(c.stderr, "%v\n", err)
			continue
		}
		if res, err = eng.Resume(ctx, flags.session, value); err != nil {
			return err
		}
	}
	if res.Err != nil {
		e.logger.Debug().Str("routine", res.Routine).Err(res.Err).Msg("routine failed")
		return errSilent
	}
	if text := renderValue(res.Value); text != "" {
		fmt.Fprintln(c.stdout, text)
	}
	return nil
}

func (c *cli) reportPaused(res *engine.RoutineResult, session string) {
	fmt.Fprintf(c.stderr, "paused: %s is waiting on %q\n", res.Routine, res.Prompt)
	hint := "routines resume VALUE"
	if session != defaultSession {
		hint += " --session " + session
	}
	fmt.Fprintf(c.stderr, "answer with `%s`\n", hint)
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered routines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()
			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tPARAMS\tDESCRIPTION")
			for _, r := range e.registry.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.QualifiedName(), r.Kind, strings.Join(r.Params, ","), r.Description)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [MANIFEST]...",
		Short: "Validate manifests and routine programs without running them",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				cfg, _, err := c.loadConfig()
				if err != nil {
					return err
				}
				if paths, err = driver.ManifestPaths(cfg); err != nil {
					return err
				}
			}
			if len(paths) == 0 {
				return fmt.Errorf("no manifests found; create %s or list manifests in %s", driver.ManifestFileName, driver.ConfigFileName)
			}
			failed := 0
			for _, path := range paths {
				manifest, err := driver.LoadManifest(path)
				if err != nil {
					fmt.Fprintf(c.stderr, "%v\n", err)
					failed++
					continue
				}
				for _, result := range manifest.Check() {
					if result.Err != nil {
						fmt.Fprintf(c.stderr, "FAIL %s (%s): %v\n", result.Routine, displayPath(result.Origin), result.Err)
						failed++
						continue
					}
					fmt.Fprintf(c.stdout, "ok   %s\n", result.Routine)
				}
			}
			if failed > 0 {
				fmt.Fprintf(c.stderr, "%d problem(s) found\n", failed)
				return errSilent
			}
			return nil
		},
	}
}

func displayPath(path string) string {
	if rel, err := filepath.Rel(".", path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func (c *cli) stackCommand() *cobra.Command {
	var session string
	var all bool
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Show the frame stack of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()
			eng := e.engine(nil)
			ctx := commandContext(cmd)
			if all {
				sessions, err := eng.Sessions(ctx)
				if err != nil {
					return err
				}
				for _, s := range sessions {
					fmt.Fprintln(c.stdout, s)
				}
				return nil
			}
			frameList, err := eng.Stack(ctx, session)
			if err != nil {
				return err
			}
			if len(frameList) == 0 {
				fmt.Fprintf(c.stdout, "session %s has no frames\n", session)
				return nil
			}
			for i := len(frameList) - 1; i >= 0; i-- {
				marker := " "
				if i == len(frameList)-1 {
					marker = "*"
				}
				fmt.Fprintf(c.stdout, "%s %d %s %s\n", marker, i, frameList[i].ID, frameList[i].Routine)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", defaultSession, "session id")
	cmd.Flags().BoolVar(&all, "all", false, "list every session with frames")
	return cmd
}

func (c *cli) cancelCommand() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Drop every frame of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()
			dropped, err := e.engine(c.eventPrinter()).Cancel(commandContext(cmd), session)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "cancelled %d frame(s)\n", len(dropped))
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", defaultSession, "session id")
	return cmd
}

func (c *cli) fetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch git routine sources and write the lock file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Sources) == 0 {
				fmt.Fprintln(c.stdout, "no sources configured")
				return nil
			}
			lock, err := driver.NewFetcher(cfg.CacheDir, logger).FetchAll(commandContext(cmd), cfg.Sources)
			if err != nil {
				return err
			}
			for _, src := range lock.Sources {
				fmt.Fprintf(c.stdout, "%s %s\n", src.Name, src.Version)
			}
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// kwargsFromJSON decodes a JSON object of keyword arguments.
func kwargsFromJSON(text string) (map[string]runtime.Value, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	v, err := runtime.UnmarshalValue([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	dict, ok := v.(*runtime.DictValue)
	if !ok {
		return nil, fmt.Errorf("arguments must be a JSON object, got %s", runtime.TypeName(v))
	}
	out := make(map[string]runtime.Value, dict.Len())
	for _, key := range dict.Keys() {
		out[key], _ = dict.Get(key)
	}
	return out, nil
}
