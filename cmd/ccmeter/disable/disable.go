// Package disablecmder provides the `ccmeter disable` CLI command.
package disablecmder

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigmetric/ccmeter/pkg/claudeconf"
	"github.com/sigmetric/ccmeter/pkg/cliui"
)

const disableLongDesc string = `Disable Claude Code telemetry export.

Removes the telemetry environment variables ccmeter wrote into
Claude Code's settings.json. Other settings and unrelated env vars
are left untouched, and the .ccmeter/ configuration is kept so
'ccmeter setup' can re-enable export later.

Examples:
  ccmeter disable`

const disableShortDesc string = "Disable Claude Code telemetry export"

type disableCommander struct {
	claudeDir string
}

// NewDisableCmd creates the disable cobra command.
func NewDisableCmd() *cobra.Command {
	cmder := &disableCommander{}

	cmd := &cobra.Command{
		Use:   "disable",
		Short: disableShortDesc,
		Long:  disableLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	cmd.Flags().StringVar(&cmder.claudeDir, "claude-dir", "", "Override the Claude Code directory (default ~/.claude)")

	return cmd
}

func (c *disableCommander) run() error {
	mgr, err := claudeconf.NewManager(c.claudeDir)
	if err != nil {
		return err
	}

	enabled, _, err := mgr.TelemetryEnabled()
	if err != nil {
		return fmt.Errorf("reading Claude settings: %w", err)
	}
	if !enabled {
		fmt.Printf("\n  %s Telemetry export is not enabled. Nothing to do.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	if err := cliui.Step(os.Stdout, "Disabling Claude Code telemetry export", func() error {
		return mgr.Disable()
	}); err != nil {
		return err
	}

	fmt.Printf("\n  %s Telemetry export disabled.\n", cliui.SuccessMark)
	fmt.Printf("  %s Configuration in .ccmeter/ was kept. Run 'ccmeter setup' to re-enable.\n\n",
		cliui.DimStyle.Render("●"))

	return nil
}
