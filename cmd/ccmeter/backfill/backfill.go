// Package backfillcmder provides the `ccmeter backfill` CLI command.
package backfillcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigmetric/ccmeter/pkg/backfill"
	"github.com/sigmetric/ccmeter/pkg/claudeconf"
	"github.com/sigmetric/ccmeter/pkg/cliui"
	"github.com/sigmetric/ccmeter/pkg/config"
	"github.com/sigmetric/ccmeter/pkg/dotdir"
	"github.com/sigmetric/ccmeter/pkg/logger"
)

const backfillLongDesc string = `Backfill historical usage from Claude Code transcripts.

Scans Claude Code's local JSONL transcripts for usage data, rebuilds the
telemetry records the live exporter would have sent, and delivers them to
the configured metering backend in batches. The run is safely repeatable:
the backend deduplicates records by transaction ID, so re-running after a
partial failure only fills the gaps.

Examples:
  ccmeter backfill
  ccmeter backfill --dry-run
  ccmeter backfill --since 7d
  ccmeter backfill --since 2026-01-01 --batch-size 50 --delay 250
  ccmeter backfill --claude-dir ~/.claude/projects --verbose`

const backfillShortDesc string = "Backfill historical usage from Claude Code transcripts"

const (
	minBatchSize = 1
	maxBatchSize = 10000
	maxDelayMS   = 60000
)

type backfillCommander struct {
	since     string
	claudeDir string
	batchSize int
	delayMS   int
	dryRun    bool
	verbose   bool

	v *viper.Viper
}

// NewBackfillCmd creates the backfill cobra command.
func NewBackfillCmd() *cobra.Command {
	cmder := &backfillCommander{}
	flags := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: backfillShortDesc,
		Long:  backfillLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, flags, []string{
				config.FlagClaudeDir,
				config.FlagBatchSize,
				config.FlagDelay,
			})
			cmder.v = v

			return cmder.validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.since, "since", "", "Only send records newer than this (<N>{d|w|m|y} or ISO date)")
	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Preview what would be sent without contacting the backend")
	cmd.Flags().BoolVarP(&cmder.verbose, "verbose", "v", false, "Show per-file and per-batch details")
	config.AddStringFlag(cmd, flags, config.FlagClaudeDir, &cmder.claudeDir)
	config.AddIntFlag(cmd, flags, config.FlagBatchSize, &cmder.batchSize)
	config.AddIntFlag(cmd, flags, config.FlagDelay, &cmder.delayMS)

	return cmd
}

// validate enforces the flag bounds here at the CLI layer; the orchestrator
// trusts its inputs.
func (c *backfillCommander) validate() error {
	batch := c.v.GetInt("backfill.batch_size")
	if batch < minBatchSize || batch > maxBatchSize {
		return fmt.Errorf("--batch-size must be between %d and %d", minBatchSize, maxBatchSize)
	}

	delay := c.v.GetInt("backfill.delay_ms")
	if delay < 0 || delay > maxDelayMS {
		return fmt.Errorf("--delay must be between 0 and %d", maxDelayMS)
	}

	return nil
}

func (c *backfillCommander) run(ctx context.Context, cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	debug, _ := cmd.Flags().GetBool("debug")

	log, closeLog := c.newRunLogger(configDir, debug)
	defer closeLog()

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	projectsDir, err := c.resolveProjectsDir()
	if err != nil {
		return err
	}

	if c.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s Dry run mode: nothing will be sent\n\n", cliui.DimStyle.Render("●"))
	}

	if c.verbose {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n\n", cliui.KeyStyle.Render("Transcripts:"), cliui.DimStyle.Render(projectsDir))
	}

	opts := backfill.Options{
		Since:     c.since,
		DryRun:    c.dryRun,
		BatchSize: c.v.GetInt("backfill.batch_size"),
		Delay:     time.Duration(c.v.GetInt("backfill.delay_ms")) * time.Millisecond,
		Verbose:   c.verbose,
	}

	b, err := backfill.NewBackfiller(cfg, opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	log.Info("starting backfill",
		"projects_dir", projectsDir,
		"batch_size", opts.BatchSize,
		"dry_run", opts.DryRun,
	)

	result, err := b.Run(ctx, projectsDir)
	if err != nil {
		if errors.Is(err, backfill.ErrNoTranscripts) {
			log.Warn("no transcripts found", "projects_dir", projectsDir)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", result.Summary())

	if c.dryRun && result.SamplePayload != nil {
		sample, err := json.MarshalIndent(result.SamplePayload, "", "  ")
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "\nSample payload:\n%s\n", sample)
		}
	}

	log.Info("backfill finished",
		"records", result.Stats.TotalRecords,
		"batches_sent", result.BatchesSent,
		"failed_batches", len(result.FailedBatches),
		"retries", result.RetryAttempts,
	)

	if !c.dryRun && result.Stats.TotalRecords > 0 {
		state := &dotdir.BackfillState{
			LastRunAt:     time.Now(),
			RecordsSent:   result.RecordsSent,
			BatchesSent:   result.BatchesSent,
			FailedBatches: len(result.FailedBatches),
		}
		if err := dotdir.NewManager().SaveBackfillState(state, configDir); err != nil {
			log.Warn("could not record backfill state", "error", err)
		}
	}

	return nil
}

// newRunLogger writes pretty output to stderr and, when the dotdir is
// writable, JSON records to .ccmeter/backfill.log for later inspection.
func (c *backfillCommander) newRunLogger(configDir string, debug bool) (*slog.Logger, func()) {
	pretty := logger.New(logger.WithPretty(true), logger.WithDebug(debug), logger.WithWriter(os.Stderr))

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return pretty, func() {}
	}

	logFile, err := os.OpenFile(filepath.Join(dir, "backfill.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return pretty, func() {}
	}

	fileLogger := logger.New(logger.WithJSON(true), logger.WithDebug(debug), logger.WithWriter(logFile))
	return logger.Multi(pretty, fileLogger), func() { _ = logFile.Close() }
}

func (c *backfillCommander) resolveProjectsDir() (string, error) {
	if dir := strings.TrimSpace(c.v.GetString("claude.projects_dir")); dir != "" {
		return dir, nil
	}

	mgr, err := claudeconf.NewManager("")
	if err != nil {
		return "", err
	}

	return mgr.ProjectsDir(), nil
}
