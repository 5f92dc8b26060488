package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type clientFunc func() (*apiClient, error)

func reconcileCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Converge the local account store onto the panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}

			var result struct {
				Created    int      `json:"created"`
				Updated    int      `json:"updated"`
				Deleted    int      `json:"deleted"`
				Errors     []string `json:"errors"`
				DurationMS int64    `json:"duration_ms"`
			}
			callErr := c.do(cmd.Context(), "POST", "/reconcile", nil, &result)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created %d, updated %d, deleted %d (%dms)\n", result.Created, result.Updated, result.Deleted, result.DurationMS)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  error: %s\n", e)
			}
			return callErr
		},
	}
}

func divergencesCmd(client clientFunc) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "divergences",
		Short: "Report accounts present on only one side",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}

			var report struct {
				HasDivergences  bool     `json:"has_divergences"`
				Count           int      `json:"count"`
				MissingLocally  []string `json:"missing_locally"`
				MissingRemotely []string `json:"missing_remotely"`
				LocalCount      int      `json:"local_count"`
				RemoteCount     int      `json:"remote_count"`
				CheckedAt       string   `json:"checked_at"`
			}
			if err := c.do(cmd.Context(), "GET", "/divergences", nil, &report); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeIndented(out, report)
			}

			fmt.Fprintf(out, "local %d, remote %d, checked %s\n", report.LocalCount, report.RemoteCount, report.CheckedAt)
			if !report.HasDivergences {
				fmt.Fprintln(out, "in sync")
				return nil
			}
			fmt.Fprintf(out, "%d divergences\n", report.Count)
			for _, u := range report.MissingLocally {
				fmt.Fprintf(out, "  missing locally:  %s\n", u)
			}
			for _, u := range report.MissingRemotely {
				fmt.Fprintf(out, "  missing remotely: %s\n", u)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func runCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a renewal scan now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}

			var result struct {
				Scanned  int      `json:"scanned"`
				Eligible int      `json:"eligible"`
				Renewed  int      `json:"renewed"`
				Failed   int      `json:"failed"`
				Skipped  int      `json:"skipped"`
				Expired  int      `json:"expired"`
				Errors   []string `json:"errors"`
			}
			callErr := c.do(cmd.Context(), "POST", "/automation/run", nil, &result)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scanned %d, eligible %d, renewed %d, failed %d, skipped %d, expired %d\n",
				result.Scanned, result.Eligible, result.Renewed, result.Failed, result.Skipped, result.Expired)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  error: %s\n", e)
			}
			return callErr
		},
	}
}

func logsCmd(client clientFunc) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the newest automation ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}

			var entries []struct {
				ID               int64  `json:"id"`
				CorrelationID    string `json:"correlation_id"`
				TaskType         string `json:"task_type"`
				Status           string `json:"status"`
				Message          string `json:"message"`
				Error            string `json:"error"`
				RelatedAccountID *int64 `json:"related_account_id"`
				CreatedAt        string `json:"created_at"`
			}
			if err := c.do(cmd.Context(), "GET", "/automation/logs?limit="+strconv.Itoa(limit), nil, &entries); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tTASK\tSTATUS\tACCOUNT\tMESSAGE")
			for _, e := range entries {
				account := "-"
				if e.RelatedAccountID != nil {
					account = strconv.FormatInt(*e.RelatedAccountID, 10)
				}
				msg := e.Message
				if e.Error != "" {
					msg += " (" + e.Error + ")"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.CreatedAt, e.TaskType, e.Status, account, msg)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries (1-500)")
	return cmd
}

type automationConfig struct {
	IsEnabled            bool    `json:"is_enabled"`
	RenewalAdvanceTime   int     `json:"renewal_advance_time"`
	RenewalPeriodMinutes int     `json:"renewal_period_minutes"`
	DefaultAutoRenewal   bool    `json:"default_auto_renewal"`
	LastRunAt            *string `json:"last_run_at,omitempty"`
	Version              int64   `json:"version,omitempty"`
}

func configCmd(client clientFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the automation configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the automation configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}

			var cfg automationConfig
			if err := c.do(cmd.Context(), "GET", "/automation/config", nil, &cfg); err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), cfg)
		},
	}

	var (
		enabled, defaultAuto string
		advance, period      int
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the automation configuration; unset flags keep their current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}

			var cfg automationConfig
			if err := c.do(cmd.Context(), "GET", "/automation/config", nil, &cfg); err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("enabled") {
				if cfg.IsEnabled, err = parseOnOff(enabled); err != nil {
					return fmt.Errorf("--enabled: %w", err)
				}
			}
			if flags.Changed("default-auto-renewal") {
				if cfg.DefaultAutoRenewal, err = parseOnOff(defaultAuto); err != nil {
					return fmt.Errorf("--default-auto-renewal: %w", err)
				}
			}
			if flags.Changed("advance") {
				cfg.RenewalAdvanceTime = advance
			}
			if flags.Changed("period") {
				cfg.RenewalPeriodMinutes = period
			}

			update := map[string]any{
				"is_enabled":             cfg.IsEnabled,
				"renewal_advance_time":   cfg.RenewalAdvanceTime,
				"renewal_period_minutes": cfg.RenewalPeriodMinutes,
				"default_auto_renewal":   cfg.DefaultAutoRenewal,
			}
			var updated automationConfig
			if err := c.do(cmd.Context(), "PUT", "/automation/config", update, &updated); err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), updated)
		},
	}
	set.Flags().StringVar(&enabled, "enabled", "", "Enable automatic renewal (on|off)")
	set.Flags().StringVar(&defaultAuto, "default-auto-renewal", "", "Auto-renewal for newly discovered accounts (on|off)")
	set.Flags().IntVar(&advance, "advance", 0, "Renewal advance time in minutes")
	set.Flags().IntVar(&period, "period", 0, "Renewal period in minutes")

	cmd.AddCommand(show, set)
	return cmd
}

func accountsCmd(client clientFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts or manage per-account renewal and notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}

			var accounts []struct {
				ID                 int64  `json:"id"`
				Username           string `json:"username"`
				Expiration         string `json:"expiration"`
				AutoRenewalEnabled bool   `json:"auto_renewal_enabled"`
				RenewalCount       int    `json:"renewal_count"`
				RenewalSuspended   bool   `json:"renewal_suspended"`
			}
			if err := c.do(cmd.Context(), "GET", "/accounts", nil, &accounts); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tEXPIRES\tAUTO\tRENEWALS\tSTATE")
			for _, a := range accounts {
				state := "active"
				if a.RenewalSuspended {
					state = "suspended"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", a.ID, a.Username, a.Expiration, onOff(a.AutoRenewalEnabled), a.RenewalCount, state)
			}
			return tw.Flush()
		},
	}

	resume := &cobra.Command{
		Use:   "resume [id]",
		Short: "Clear a renewal suspension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := client()
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), "POST", "/accounts/"+id+"/renewal/resume", nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s resumed\n", id)
			return nil
		},
	}

	var (
		auto    string
		advance int
	)
	renewal := &cobra.Command{
		Use:   "renewal [id]",
		Short: "Set auto-renewal and the advance override for one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			enabled, err := parseOnOff(auto)
			if err != nil {
				return fmt.Errorf("--auto: %w", err)
			}

			body := map[string]any{"auto_renewal_enabled": enabled}
			if cmd.Flags().Changed("advance") {
				body["renewal_advance_minutes"] = advance
			}

			c, err := client()
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), "PUT", "/accounts/"+id+"/renewal", body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s updated\n", id)
			return nil
		},
	}
	renewal.Flags().StringVar(&auto, "auto", "on", "Automatic renewal (on|off)")
	renewal.Flags().IntVar(&advance, "advance", 0, "Advance override in minutes; omit to use the global value")

	note := &cobra.Command{
		Use:   "note [id] [markdown]",
		Short: "Replace the operator note on an account; an empty string clears it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := client()
			if err != nil {
				return err
			}

			var account struct {
				NoteHTML string `json:"note_html"`
			}
			if err := c.do(cmd.Context(), "PUT", "/accounts/"+id+"/note", map[string]any{"note": args[1]}, &account); err != nil {
				return err
			}
			if account.NoteHTML == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "account %s note cleared\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s note updated\n%s", id, account.NoteHTML)
			return nil
		},
	}

	cmd.AddCommand(resume, renewal, note)
	return cmd
}

func healthCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}

			var health map[string]any
			callErr := c.do(cmd.Context(), "GET", "/health", nil, &health)
			if health != nil {
				if err := writeIndented(cmd.OutOrStdout(), health); err != nil {
					return err
				}
			}
			return callErr
		},
	}
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseOnOff(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("want on or off, got %q", v)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func parseID(raw string) (string, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return "", fmt.Errorf("invalid account id %q", raw)
	}
	return strconv.FormatInt(id, 10), nil
}
