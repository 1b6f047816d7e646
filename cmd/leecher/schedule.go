package main

import (
	"fmt"
	"os"
	"time"

	"leecher/internal/export"
	"leecher/internal/models"

	"github.com/spf13/cobra"
)

// shotgridFlags are the credentials shared by submit and events.
type shotgridFlags struct {
	url        string
	scriptName string
	scriptKey  string
}

func (f *shotgridFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "shotgrid-url", os.Getenv("SHOTGRID_URL"), "Shotgrid site url (env SHOTGRID_URL)")
	cmd.Flags().StringVar(&f.scriptName, "script-name", os.Getenv("SHOTGRID_SCRIPT_NAME"), "API script name (env SHOTGRID_SCRIPT_NAME)")
	cmd.Flags().StringVar(&f.scriptKey, "script-key", os.Getenv("SHOTGRID_SCRIPT_KEY"), "API script key (env SHOTGRID_SCRIPT_KEY)")
}

func (f *shotgridFlags) credentials() models.ShotgridCredentials {
	return models.ShotgridCredentials{URL: f.url, ScriptName: f.scriptName, ScriptKey: f.scriptKey}
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Drain the schedule queue once and print the report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.processor.Drain(cmd.Context())
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var (
	submitFlags     shotgridFlags
	submitProjectID int64
	submitOverwrite bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <project-name>",
	Short: "Schedule a project and queue a sync attempt",
	Example: `  leecher submit demo --shotgrid-project-id 122 \
      --shotgrid-url https://studio.shotgunstudio.com --script-name leecher --script-key ...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		item, err := a.registrar.Submit(cmd.Context(), args[0], models.BatchCommand{
			ProjectID:   submitProjectID,
			ProjectName: args[0],
			Overwrite:   submitOverwrite,
			Credentials: submitFlags.credentials(),
		})
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <project-name>",
	Short: "Unschedule a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		purged, err := a.registrar.Cancel(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("cancel: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s unscheduled, %d queued item(s) purged\n", args[0], purged)
		return nil
	},
}

var (
	logsProject string
	logsLimit   int
	logsDesc    bool
	logsXLSX    bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List drain logs, or export them to XLSX with --xlsx",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		logs, err := a.registrar.ListLogs(cmd.Context(), models.ListQuery{
			ProjectName: logsProject,
			Limit:       logsLimit,
			Descending:  logsDesc,
		})
		if err != nil {
			return fmt.Errorf("list logs: %w", err)
		}

		if !logsXLSX {
			return printJSON(cmd.OutOrStdout(), logs)
		}
		path, err := export.SaveLogs(cfg.Exports.Path, logs, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	submitFlags.bind(submitCmd)
	submitCmd.Flags().Int64Var(&submitProjectID, "shotgrid-project-id", 0, "Shotgrid project id")
	submitCmd.Flags().BoolVar(&submitOverwrite, "overwrite", false, "overwrite params of existing entities")
	_ = submitCmd.MarkFlagRequired("shotgrid-project-id")

	logsCmd.Flags().StringVarP(&logsProject, "project", "p", "", "only logs of this project")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", models.DefaultListLimit, "max logs to return")
	logsCmd.Flags().BoolVar(&logsDesc, "desc", false, "newest first")
	logsCmd.Flags().BoolVar(&logsXLSX, "xlsx", false, "write an XLSX file to exports.path instead of printing")

	rootCmd.AddCommand(drainCmd, submitCmd, cancelCmd, logsCmd)
}
