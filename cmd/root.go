// Package cmd is the wsp-sniper command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wsp-sniper/config"
	"wsp-sniper/logx"
	"wsp-sniper/selection"
	"wsp-sniper/timing"
)

var configFile string

// newTimeSource builds the clock reference used by run and clockcheck.
var newTimeSource = func(cfg *config.Config) timing.TimeSource {
	return timing.NTPSource{Timeout: cfg.NTPTimeout}
}

// env is what every subcommand works with once configuration is loaded.
type env struct {
	cfg *config.Config
	log *logx.Logger
	in  io.Reader
	out io.Writer

	timeSource timing.TimeSource
	prompter   *selection.Prompter
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "wsp-sniper",
		Short: "Register for WSP courses the instant registration opens",
		Long: `wsp-sniper logs in to the WSP registration API, lets you pick lesson
sections for every subject, waits for the registration start time with an
NTP-corrected clock and fires registration requests for all subjects.

Configuration precedence (highest to lowest):
1. CLI flags
2. Environment variables (WSP_*)
3. Configuration file (--config, or ./.env when present)
4. Default values

EXAMPLES:
  # First run: write .env with credentials and start time
  wsp-sniper setup

  # Pick sections, wait for 10:00 and register
  wsp-sniper run

  # Reuse the saved plan without prompts
  wsp-sniper run --yes --desired-time-local 09:59:59.950000

  # Check clock offset and wake precision
  wsp-sniper clockcheck`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Configuration file (.env, toml, yaml or json)")
	pf.String("log-level", "", "Console log level: debug, info, warn, error (default: info)")
	pf.String("log-file", "", "JSON log file (default: logs/wsp_sniper.log)")

	root.AddCommand(
		newRunCommand(),
		newSelectCommand(),
		newPlanCommand(),
		newClockCheckCommand(),
		newSetupCommand(),
	)
	return root
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// loadEnv resolves the configuration for cmd and sets up logging.
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(config.Options{ConfigFile: configFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	log := logx.New(logx.Config{Level: cfg.LogLevel, File: cfg.LogFile, Console: cmd.ErrOrStderr()})
	return &env{
		cfg:        cfg,
		log:        log,
		in:         cmd.InOrStdin(),
		out:        cmd.OutOrStdout(),
		timeSource: newTimeSource(cfg),
	}, nil
}

// prompt returns the env's prompter. All questions share one reader so no
// buffered input is lost between them.
func (e *env) prompt() *selection.Prompter {
	if e.prompter == nil {
		e.prompter = selection.NewPrompter(e.in, e.out)
	}
	return e.prompter
}

func (e *env) close() {
	_ = e.log.Close()
}
