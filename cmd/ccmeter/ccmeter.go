// Package ccmetercmder
package ccmetercmder

import (
	"github.com/spf13/cobra"

	backfillcmder "github.com/sigmetric/ccmeter/cmd/ccmeter/backfill"
	configcmder "github.com/sigmetric/ccmeter/cmd/ccmeter/config"
	disablecmder "github.com/sigmetric/ccmeter/cmd/ccmeter/disable"
	initcmder "github.com/sigmetric/ccmeter/cmd/ccmeter/init"
	setupcmder "github.com/sigmetric/ccmeter/cmd/ccmeter/setup"
	statuscmder "github.com/sigmetric/ccmeter/cmd/ccmeter/status"
	versioncmder "github.com/sigmetric/ccmeter/cmd/version"
)

const ccmeterLongDesc string = `ccmeter connects Claude Code to your metering backend.

Live telemetry is exported by Claude Code itself once configured:
  ccmeter setup        Configure telemetry export and backend credentials
  ccmeter status       Show current configuration and last backfill

Historical usage is re-derived from local transcripts:
  ccmeter backfill     Send past usage from ~/.claude/projects`

const ccmeterShortDesc string = "ccmeter - Claude Code usage metering"

func NewCCMeterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ccmeter",
		Short: ccmeterShortDesc,
		Long:  ccmeterLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .ccmeter config directory")

	// Add subcommands
	cmd.AddCommand(setupcmder.NewSetupCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(backfillcmder.NewBackfillCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(disablecmder.NewDisableCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
