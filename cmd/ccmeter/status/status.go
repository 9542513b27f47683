// Package statuscmder provides the status command for displaying the current
// telemetry configuration and last backfill run.
package statuscmder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigmetric/ccmeter/pkg/backfill"
	"github.com/sigmetric/ccmeter/pkg/claudeconf"
	"github.com/sigmetric/ccmeter/pkg/cliui"
	"github.com/sigmetric/ccmeter/pkg/config"
	"github.com/sigmetric/ccmeter/pkg/dotdir"
)

const statusLongDesc string = `Show the current ccmeter state.

Displays the configured backend (API key masked), whether Claude Code's
telemetry export is enabled in settings.json, the effective cost multiplier,
and the last backfill run.

With --check, also POSTs one empty payload to verify the endpoint accepts
deliveries.

Examples:
  ccmeter status
  ccmeter status --check`

const statusShortDesc string = "Show current configuration and last backfill"

// NewStatusCmd creates the status cobra command.
func NewStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(cmd.Context(), configDir, check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Verify the endpoint accepts deliveries")

	return cmd
}

func runStatus(ctx context.Context, configDir string, check bool) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println()

	if !cfg.IsConfigured() {
		fmt.Printf("  %s Not configured. Run 'ccmeter setup' to get started.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Endpoint:  "), cliui.ValueStyle.Render(cfg.Backend.Endpoint))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("API key:   "), cliui.DimStyle.Render(cliui.MaskKey(cfg.Backend.APIKey)))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Multiplier:"),
		cliui.ValueStyle.Render(strconv.FormatFloat(config.ResolveCostMultiplier(cfg), 'f', -1, 64)))
	if cfg.Attribution.Email != "" {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Email:     "), cliui.ValueStyle.Render(cfg.Attribution.Email))
	}

	mgr, err := claudeconf.NewManager("")
	if err != nil {
		return err
	}

	enabled, exportEndpoint, err := mgr.TelemetryEnabled()
	switch {
	case err != nil:
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Export:    "),
			cliui.WarnStyle.Render(fmt.Sprintf("could not read %s: %v", mgr.SettingsPath(), err)))
	case enabled && exportEndpoint == cfg.Backend.Endpoint:
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Export:    "), cliui.NameStyle.Render("enabled"))
	case enabled:
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Export:    "),
			cliui.WarnStyle.Render("enabled, but pointing at "+exportEndpoint))
	default:
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Export:    "),
			cliui.WarnStyle.Render("disabled, run 'ccmeter setup'"))
	}

	state, err := dotdir.NewManager().LoadBackfillState(configDir)
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Backfill:  "), cliui.DimStyle.Render("never run"))
	} else {
		summary := fmt.Sprintf("%s: %d records in %d batches",
			state.LastRunAt.Format(time.RFC3339), state.RecordsSent, state.BatchesSent)
		if state.FailedBatches > 0 {
			summary += fmt.Sprintf(" (%d failed)", state.FailedBatches)
		}
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Backfill:  "), cliui.ValueStyle.Render(summary))
	}

	if check {
		fmt.Println()
		if err := cliui.Step(os.Stdout, "Checking endpoint", func() error {
			checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			return backfill.CheckEndpoint(checkCtx, cfg.Backend.Endpoint, cfg.Backend.APIKey)
		}); err != nil {
			fmt.Printf("\n  %s Endpoint check failed: %v\n\n", cliui.WarnStyle.Render("!"), err)
			return nil
		}
	}

	fmt.Println()
	return nil
}
