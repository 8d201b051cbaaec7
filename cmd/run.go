package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wsp-sniper/client"
	"wsp-sniper/config"
	"wsp-sniper/plan"
	"wsp-sniper/selection"
	"wsp-sniper/sniper"
	"wsp-sniper/timing"
)

func newRunCommand() *cobra.Command {
	var (
		assumeYes bool
		fresh     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prepare a plan, wait for the start time and register",
		Long: `run logs in, loads or builds the registration plan, synchronizes the
clock over NTP, waits for desired_time_local and fires registration requests
for every subject of the plan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if e.needsSetup(assumeYes) {
				if e, err = e.firstRun(cmd); err != nil {
					return err
				}
			}
			defer e.close()
			return e.run(cmd.Context(), assumeYes, fresh)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&assumeYes, "yes", "y", false, "Load the saved plan and skip confirmations")
	f.BoolVar(&fresh, "fresh", false, "Ignore the saved plan and select lessons again")
	f.String("desired-time-local", "", "Local time of day to fire at, HH:MM:SS[.ffffff]")
	f.String("request-delay", "", "Stagger between subject launches (seconds or duration)")
	f.String("retry-delay", "", "Delay after a 'registration not open' response")
	f.String("overload-delay", "", "Delay after a 504 response")
	f.String("error-delay", "", "Delay after any other failed attempt")
	f.Int("max-error-attempts", 0, "Consecutive failed attempts before giving up on a subject")
	f.String("not-open-marker", "", "Body text of a 'registration not open' 500 response")
	f.String("attack-timeout", "", "Upper bound on the whole attack, 0 for none")
	f.String("ntp-server", "", "NTP server used for clock synchronization")
	f.Bool("safety-stop", true, "Stop every subject on HTTP 403 or 429")
	addNetworkFlags(cmd)
	f.String("plan-file", "", "Saved plan location")
	f.String("report-file", "", "Append a JSON execution record to this file")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

// addNetworkFlags adds the client settings shared by commands that talk to WSP.
func addNetworkFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("base-url", "", "WSP API base URL")
	f.String("proxy", "", "Proxy URL (http, https or socks5)")
	f.String("proxy-file", "", "File with one proxy per line, one is picked per run")
	f.Bool("fingerprint", false, "Use a browser TLS fingerprint")
	f.String("user-agent-file", "", "File with one User-Agent per line")
	f.String("http-timeout", "", "Per-request HTTP timeout")
}

func (e *env) run(ctx context.Context, assumeYes, fresh bool) error {
	if err := e.cfg.RequireCredentials(); err != nil {
		return err
	}
	tod, err := timing.ParseTimeOfDay(e.cfg.DesiredTimeLocal)
	if err != nil {
		return err
	}

	metrics := sniper.NewMetrics()
	stopMetrics, err := e.serveMetrics(metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	c, proxyURL, err := e.openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	subjects, err := e.signIn(ctx, c)
	if err != nil {
		return err
	}
	if len(subjects) == 0 {
		e.log.Warn().Msg("no subjects found in accruals, nothing to register")
		return nil
	}

	prompter := e.prompt()
	p := plan.New()
	if !fresh {
		if p, err = e.savedPlan(prompter, subjects, assumeYes); err != nil {
			return err
		}
	}
	if p.Len() == 0 {
		if p, err = e.selectPlan(ctx, c, prompter, subjects); err != nil {
			return err
		}
	}
	if p.Len() == 0 {
		e.log.Warn().Msg("no lessons selected, nothing to register")
		return nil
	}

	fmt.Fprintln(e.out, selection.Banner("Final registration plan"))
	e.printPlan(p)
	if !assumeYes {
		ok, err := prompter.Confirm("Confirm registration blueprint?")
		if err != nil {
			return err
		}
		if !ok {
			e.log.Warn().Msg("registration cancelled by user")
			return nil
		}
	}

	if err := c.Warmup(ctx); err != nil {
		e.log.Warn().Err(err).Msg("connection warmup failed")
	}

	sched := timing.NewScheduler(e.timeSource, e.cfg.NTPServer, e.log.Logger)
	sched.Sync(ctx)
	target, err := sched.ResolveTarget(tod.String())
	if err != nil {
		return err
	}
	if left := target.Sub(sched.Now()); left > 0 {
		e.log.Info().Str("in", left.Round(time.Millisecond).String()).Msg("waiting for registration to open")
	}
	drift, err := sched.Wait(ctx, target)
	if err != nil {
		return fmt.Errorf("wait for target: %w", err)
	}
	metrics.ObserveWake(drift, sched.Offset())
	fmt.Fprintln(e.out, timing.FormatDrift(drift))
	e.log.Info().Msg(">>> LAUNCHING REGISTRATION REQUESTS <<<")

	var safetyReason string
	o := &sniper.Orchestrator{
		Attempter: &sniper.Attempter{
			Registrar: c,
			Policy: sniper.Policy{
				RetryDelay:       e.cfg.RetryDelay,
				OverloadDelay:    e.cfg.OverloadDelay,
				ErrorDelay:       e.cfg.ErrorDelay,
				MaxErrorAttempts: e.cfg.MaxErrorAttempts,
				NotOpenMarker:    e.cfg.NotOpenMarker,
			},
			Log:     e.log.Logger,
			Metrics: metrics,
		},
		RequestDelay: e.cfg.RequestDelay,
		Timeout:      e.cfg.AttackTimeout,
		SafetyStop:   e.cfg.SafetyStop,
		OnSafetyStop: func(reason string) { safetyReason = reason },
		Log:          e.log.Logger,
	}
	outcomes := o.Launch(ctx, p)

	report := sniper.NewReport(p, outcomes)
	report.BaseURL = e.cfg.BaseURL
	report.Network = describeNetwork(proxyURL, e.cfg.Fingerprint)
	report.Mode = fmt.Sprintf("staggered, %s between subjects", e.cfg.RequestDelay)
	report.TargetTime = target
	report.ActualTime = target.Add(drift)
	report.ClockOffset = sched.Offset()
	report.SafetyReason = safetyReason
	report.Print(e.out)

	if e.cfg.ReportFile != "" {
		if err := sniper.WriteStructuredLog(report, e.cfg.ReportFile); err != nil {
			e.log.Warn().Err(err).Str("file", e.cfg.ReportFile).Msg("failed to write execution record")
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if report.Verdict() == "FAILED" {
		fmt.Fprintln(e.out, color.YellowString("No subject was registered."))
	}
	return nil
}

// needsSetup reports whether run should ask for credentials first: they are
// missing, no config file was given and there is no .env yet.
func (e *env) needsSetup(assumeYes bool) bool {
	if assumeYes || configFile != "" {
		return false
	}
	if !errors.Is(e.cfg.RequireCredentials(), config.ErrMissingCredentials) {
		return false
	}
	_, err := os.Stat(config.DefaultEnvFile)
	return errors.Is(err, os.ErrNotExist)
}

// firstRun writes .env from the answers and reloads the configuration.
func (e *env) firstRun(cmd *cobra.Command) (*env, error) {
	defer e.close()
	fmt.Fprintln(e.out, color.YellowString("[!] No %s found. Starting first run setup.", config.DefaultEnvFile))
	s, err := askSetup(e.prompt(), e.out)
	if err != nil {
		return nil, err
	}
	if err := config.WriteEnvFile(config.DefaultEnvFile, s); err != nil {
		return nil, err
	}
	fmt.Fprintln(e.out, color.GreenString("[✓] Configuration saved to '%s'.", config.DefaultEnvFile))

	next, err := loadEnv(cmd)
	if err != nil {
		return nil, err
	}
	next.prompter = e.prompter
	return next, nil
}

func describeNetwork(proxyURL string, fingerprint bool) string {
	s := client.Describe(proxyURL)
	if fingerprint {
		s += ", browser TLS fingerprint"
	}
	return s
}

// serveMetrics exposes metrics on metrics_addr until the returned stop is
// called. It is a no-op without an address.
func (e *env) serveMetrics(m *sniper.Metrics) (stop func(), err error) {
	if e.cfg.MetricsAddr == "" {
		return func() {}, nil
	}
	ln, err := net.Listen("tcp", e.cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	e.log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics on /metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
