package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"

	"wsp-sniper/client"
	"wsp-sniper/plan"
	"wsp-sniper/selection"
)

// openClient builds an API client from the configuration. The returned proxy
// URL is the one in use, "" for a direct connection.
func (e *env) openClient() (*client.Client, string, error) {
	fp := client.NewFingerprintManager()
	if path := e.cfg.UserAgentFile; path != "" {
		n, err := fp.LoadUserAgents(path)
		if err != nil {
			return nil, "", fmt.Errorf("load user agents: %w", err)
		}
		e.log.Debug().Int("count", n).Str("file", path).Msg("user agents loaded")
	}

	proxyURL := e.cfg.Proxy
	if proxyURL == "" && e.cfg.ProxyFile != "" {
		pm := client.NewProxyManager()
		n, err := pm.LoadProxies(e.cfg.ProxyFile)
		if err != nil {
			return nil, "", fmt.Errorf("load proxies: %w", err)
		}
		e.log.Debug().Int("count", n).Str("file", e.cfg.ProxyFile).Msg("proxies loaded")
		proxyURL = pm.GetSticky()
	}

	c, err := client.New(client.Config{
		BaseURL:            e.cfg.BaseURL,
		Username:           e.cfg.Username,
		Password:           e.cfg.Password,
		MaxRetries:         e.cfg.MaxRetries,
		Timeout:            e.cfg.HTTPTimeout,
		Proxy:              proxyURL,
		Fingerprint:        e.cfg.Fingerprint,
		InsecureSkipVerify: e.cfg.InsecureTLS,
		Fingerprints:       fp,
	}, e.log.Logger)
	if err != nil {
		return nil, "", err
	}
	e.log.Info().Str("network", client.Describe(proxyURL)).Bool("fingerprint", e.cfg.Fingerprint).Msg("client ready")
	return c, proxyURL, nil
}

// signIn logs in and returns the subjects open for registration.
func (e *env) signIn(ctx context.Context, c *client.Client) ([]int, error) {
	if _, err := c.Login(ctx); err != nil {
		return nil, err
	}
	subjects, err := c.FetchAccruals(ctx)
	if err != nil {
		return nil, err
	}
	e.log.Info().Int("count", len(subjects)).Msg("subjects found")
	return subjects, nil
}

// savedPlan offers the saved plan and filters it against subjects. It returns
// an empty plan when there is none or the user declines it.
func (e *env) savedPlan(p *selection.Prompter, subjects []int, assumeYes bool) (*plan.Plan, error) {
	saved, err := plan.Load(e.cfg.PlanFile)
	if err != nil {
		e.log.Warn().Err(err).Str("file", e.cfg.PlanFile).Msg("saved plan is unreadable, ignoring it")
		return plan.New(), nil
	}
	if saved.Len() == 0 {
		return saved, nil
	}

	if !assumeYes {
		fmt.Fprintln(e.out, color.CyanString("\n[?] Found a saved plan in '%s'.", e.cfg.PlanFile))
		ok, err := p.Confirm("Do you want to load the previous configuration?")
		if err != nil {
			return nil, err
		}
		if !ok {
			return plan.New(), nil
		}
	}

	kept, dropped := saved.Filter(subjects)
	for _, id := range dropped {
		e.log.Warn().Int("subject", id).Msg("subject from saved plan is no longer available, dropping it")
	}
	e.log.Info().Int("subjects", kept.Len()).Msg("plan loaded")
	return kept, nil
}

// selectPlan walks the user through every subject and saves the result.
func (e *env) selectPlan(ctx context.Context, c *client.Client, p *selection.Prompter, subjects []int) (*plan.Plan, error) {
	fmt.Fprintln(e.out, selection.Banner("Lesson selection"))
	built, err := selection.BuildPlan(ctx, c, p, subjects, e.log.Logger)
	if err != nil {
		return nil, err
	}
	if built.Len() == 0 {
		return built, nil
	}
	if err := plan.Save(e.cfg.PlanFile, built); err != nil {
		e.log.Warn().Err(err).Msg("failed to save plan")
	} else {
		fmt.Fprintln(e.out, color.GreenString("[✓] Plan saved to '%s' for next time.", e.cfg.PlanFile))
	}
	return built, nil
}

func (e *env) printPlan(p *plan.Plan) {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(e.out, string(raw))
}
