// Package configcmder provides the config command for managing persistent
// ccmeter configuration stored in the .ccmeter/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent ccmeter configuration.

Configuration is stored as config.toml in the .ccmeter/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  backend.endpoint, backend.api_key,
  attribution.email, attribution.organization_id, attribution.organization_name,
  attribution.product_id, attribution.product_name,
  billing.subscription_tier, billing.cost_multiplier,
  backfill.batch_size, backfill.delay_ms,
  claude.projects_dir

Use subcommands to get, set, or list configuration values:
  ccmeter config set <key> <value>    Set a configuration value
  ccmeter config get <key>            Get a configuration value
  ccmeter config list                 List all configuration values

Examples:
  ccmeter config set billing.subscription_tier max_5x
  ccmeter config set backfill.batch_size 50
  ccmeter config get backend.endpoint
  ccmeter config list`

const configShortDesc string = "Manage persistent ccmeter configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
