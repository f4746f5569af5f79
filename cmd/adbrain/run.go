// ABOUTME: One-shot campaign run and provider inspection commands
// ABOUTME: Prints colored stage progress to stderr and the result JSON to stdout

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/adbrain/internal/campaign"
	"github.com/2389/adbrain/internal/generation"
	"github.com/2389/adbrain/internal/pipeline"
	"github.com/2389/adbrain/internal/server"
	"github.com/2389/adbrain/internal/workflow"
)

func newRunCmd() *cobra.Command {
	var (
		req      campaign.Request
		values   []string
		audience map[string]string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one campaign and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.BrandValues = values
			req.Audience = audience
			return runCampaign(cmd.Context(), req)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Topic, "topic", "", "campaign topic (required)")
	f.StringVar(&req.Brand, "brand", "", "brand name (required)")
	f.Float64Var(&req.Budget, "budget", 0, "campaign budget")
	f.StringVar(&req.Region, "region", "", "target region (default global)")
	f.StringVar((*string)(&req.Creativity), "creativity", "", "creativity level: low, medium, high")
	f.StringVar((*string)(&req.TrendDepth), "depth", "", "trend depth: shallow, standard, deep")
	f.BoolVar(&req.Flags.IncludeLiveData, "live", false, "gather live data from configured sources")
	f.StringSliceVar(&values, "value", nil, "brand value (repeatable)")
	f.StringToStringVar(&audience, "audience", nil, "audience attributes, e.g. age=18-34,interest=running")
	return cmd
}

func runCampaign(ctx context.Context, req campaign.Request) error {
	req, err := pipeline.Prepare(req)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the result; logs go to stderr.
	logger := setupLogger(cfg.Logging, os.Stderr)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := pipeline.New(ctx, cfg, st, pipeline.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Close(closeCtx); err != nil {
			logger.Warn("failed to close pipeline", "error", err)
		}
	}()

	res, runErr := p.Run(ctx, "", req, printProgress)
	if res != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		printSummary(res)
	}
	return runErr
}

func printProgress(ev workflow.Event) {
	var status string
	switch ev.Status {
	case workflow.StatusPending:
		return
	case workflow.StatusRunning:
		status = color.CyanString("running  ")
	case workflow.StatusCompleted:
		status = color.GreenString("completed")
	case workflow.StatusDegraded:
		status = color.YellowString("degraded ")
	case workflow.StatusFailed:
		status = color.New(color.FgRed, color.Bold).Sprint("failed   ")
	default:
		status = color.HiBlackString("%-9s", ev.Status)
	}
	line := fmt.Sprintf("    %s %-10s", status, ev.Stage)
	if ev.Provider != "" {
		line += color.HiBlackString(" via %s", ev.Provider)
	}
	if ev.Error != "" {
		line += color.HiBlackString(" (%s)", ev.Error)
	}
	fmt.Fprintln(os.Stderr, line)
}

func printSummary(res *workflow.Result) {
	c := color.New(color.FgGreen)
	switch res.Status {
	case workflow.RunDegraded:
		c = color.New(color.FgYellow)
	case workflow.RunFailed:
		c = color.New(color.FgRed, color.Bold)
	}
	fmt.Fprintf(os.Stderr, "\n    run %s ", res.RunID)
	c.Fprintf(os.Stderr, "%s", res.Status)
	fmt.Fprintf(os.Stderr, " in %s (%d degraded)\n", res.Duration.Round(time.Millisecond), res.Count(workflow.StatusDegraded))
}

func newProvidersCmd() *cobra.Command {
	var window string
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show the provider chain and health of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProviders(cmd.Context(), window)
		},
	}
	cmd.Flags().StringVar(&window, "window", "", "limit call statistics to this duration, e.g. 1h")
	return cmd
}

func runProviders(ctx context.Context, window string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/api/providers", cfg.Server.HTTPAddr)
	if window != "" {
		url += "?window=" + window
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("querying server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}

	var body server.ProvidersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	printProviders(body)
	return nil
}

func printProviders(body server.ProvidersResponse) {
	if len(body.Chain) == 0 {
		fmt.Println("no providers configured")
		return
	}

	states := make(map[string]generation.Health, len(body.Gateway.Providers))
	for _, h := range body.Gateway.Providers {
		states[h.Name] = h.State
	}
	type counts struct{ calls, failures int64 }
	calls := make(map[string]counts, len(body.Calls))
	for _, c := range body.Calls {
		calls[c.Provider] = counts{c.Calls, c.Failures}
	}

	fmt.Printf("%-16s %-8s %-10s %-12s %s\n", "NAME", "PRIORITY", "TIMEOUT", "STATE", "CALLS")
	for _, p := range body.Chain {
		state, ok := states[p.Name]
		if !ok {
			state = generation.Healthy
		}
		c := calls[p.Name]
		fmt.Printf("%-16s %-8d %-10s %-12s %d (%d failed)\n",
			p.Name, p.Priority, p.Timeout, colorState(state), c.calls, c.failures)
	}
	fmt.Printf("\ncache: %d entries, %d hits, %d misses\n",
		body.Gateway.Cache.Size, body.Gateway.Cache.Hits, body.Gateway.Cache.Misses)
}

func colorState(state generation.Health) string {
	padded := fmt.Sprintf("%-12s", state)
	switch state {
	case generation.Healthy:
		return color.GreenString("%s", padded)
	case generation.Unavailable:
		return color.RedString("%s", padded)
	default:
		return color.YellowString("%s", padded)
	}
}
