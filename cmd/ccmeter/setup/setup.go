// Package setupcmder provides the `ccmeter setup` CLI command.
package setupcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sigmetric/ccmeter/pkg/backfill"
	"github.com/sigmetric/ccmeter/pkg/claudeconf"
	"github.com/sigmetric/ccmeter/pkg/cliui"
	"github.com/sigmetric/ccmeter/pkg/config"
)

const setupLongDesc string = `Configure Claude Code to export usage telemetry to your metering backend.

Prompts for the backend endpoint and API key (or reads them from flags),
stores them in the .ccmeter/ config, writes the telemetry env block into
Claude Code's settings.json, and verifies the endpoint accepts deliveries.

The API key prompt hides input on a terminal; it can also be piped:
  echo $KEY | ccmeter setup --endpoint https://metering.example.com

Examples:
  ccmeter setup
  ccmeter setup --endpoint https://metering.example.com
  ccmeter setup --email dev@example.com --tier max_5x
  ccmeter setup --skip-check`

const setupShortDesc string = "Configure Claude Code telemetry export"

type setupCommander struct {
	endpoint  string
	email     string
	tier      string
	skipCheck bool
}

// NewSetupCmd creates the setup cobra command.
func NewSetupCmd() *cobra.Command {
	cmder := &setupCommander{}
	flags := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "setup",
		Short: setupShortDesc,
		Long:  setupLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.Context(), configDir)
		},
	}

	config.AddStringFlag(cmd, flags, config.FlagEndpoint, &cmder.endpoint)
	cmd.Flags().StringVar(&cmder.email, "email", "", "Email to attribute usage to")
	cmd.Flags().StringVar(&cmder.tier, "tier", "", "Subscription tier ("+strings.Join(config.KnownTiers(), ", ")+")")
	cmd.Flags().BoolVar(&cmder.skipCheck, "skip-check", false, "Skip the endpoint health check")

	return cmd
}

func (c *setupCommander) run(ctx context.Context, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(c.endpoint), "/")
	if endpoint == "" {
		endpoint, err = promptLine("Backend endpoint URL: ")
		if err != nil {
			return err
		}
		endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	}
	if endpoint == "" {
		return errors.New("endpoint cannot be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) URL: %q", endpoint)
	}

	apiKey, err := readAPIKey()
	if err != nil {
		return err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	if c.tier != "" && !config.IsKnownTier(c.tier) {
		return fmt.Errorf("unknown subscription tier: %q (known tiers: %s)",
			c.tier, strings.Join(config.KnownTiers(), ", "))
	}

	cfg.Backend.Endpoint = endpoint
	cfg.Backend.APIKey = apiKey
	if c.email != "" {
		cfg.Attribution.Email = c.email
	}
	if c.tier != "" {
		cfg.Billing.SubscriptionTier = c.tier
	}

	fmt.Println()

	if err := cliui.Step(os.Stdout, "Saving configuration", func() error {
		return cfger.SaveConfig(cfg)
	}); err != nil {
		return err
	}

	if err := cliui.Step(os.Stdout, "Enabling Claude Code telemetry export", func() error {
		mgr, err := claudeconf.NewManager("")
		if err != nil {
			return err
		}
		return mgr.Enable(endpoint, apiKey)
	}); err != nil {
		return err
	}

	if !c.skipCheck {
		if err := cliui.Step(os.Stdout, "Checking endpoint", func() error {
			checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			return backfill.CheckEndpoint(checkCtx, endpoint, apiKey)
		}); err != nil {
			fmt.Printf("\n  %s Endpoint check failed: %v\n", cliui.WarnStyle.Render("!"), err)
			fmt.Printf("  %s Configuration was saved; fix the endpoint and run 'ccmeter status --check'.\n\n",
				cliui.DimStyle.Render(" "))
			return nil
		}
	}

	fmt.Printf("\n  %s Telemetry configured %s\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render("(key "+cliui.MaskKey(apiKey)+")"),
	)
	fmt.Printf("  %s Restart Claude Code to pick up the new settings.\n", cliui.DimStyle.Render("●"))
	fmt.Printf("  %s Run 'ccmeter backfill' to send historical usage.\n\n", cliui.DimStyle.Render("●"))

	return nil
}

// promptLine reads one visible line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}

// readAPIKey reads the API key from stdin. If stdin is a pipe, it reads the
// first line. Otherwise, it prompts interactively with hidden input.
func readAPIKey() (string, error) {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("checking stdin: %w", err)
	}

	// Piped input
	if (fi.Mode() & os.ModeCharDevice) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			return scanner.Text(), nil
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return "", errors.New("no input received on stdin")
	}

	// Interactive terminal
	fmt.Print("Backend API key (input hidden): ")
	key, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}

	return string(key), nil
}
