package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/remindd/internal/config"
)

type reminderView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Notes       string `json:"notes"`
	At          string `json:"at"`
	EffectiveAt string `json:"effective_at"`
	Recurrence  string `json:"recurrence"`
	Enabled     bool   `json:"enabled"`
	Snoozed     bool   `json:"snoozed"`
	SnoozeUntil string `json:"snooze_until"`
	CompletedAt string `json:"completed_at"`
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a reminder",
	Long: `Create a reminder.

Examples:
  remindd add "Dentist" --at "2026-03-01 09:00"
  remindd add "Water plants" --at "2026-03-01 08:00" --recur EVERY_N_DAYS:3
  remindd add "Standup" --at "2026-03-02 09:30" --recur WEEKLY:MON,WED,FRI --notes "zoom link in calendar"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")
		at, _ := cmd.Flags().GetString("at")
		notes, _ := cmd.Flags().GetString("notes")
		recur, _ := cmd.Flags().GetString("recur")

		if at == "" {
			return fmt.Errorf("--at is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reminders", map[string]any{
			"title":      title,
			"notes":      notes,
			"at":         at,
			"recurrence": recur,
		})
		if err != nil {
			return err
		}

		var created reminderView
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Created reminder %s for %s", created.ID[:8], created.At)
		return nil
	},
}

func init() {
	addCmd.Flags().String("at", "", `datetime, e.g. "2026-03-01 09:00"`)
	addCmd.Flags().String("notes", "", "free-form notes")
	addCmd.Flags().String("recur", "", "NONE, DAILY, EVERY_N_DAYS:n, WEEKLY:MON,WED, MONTHLY or YEARLY")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List reminders, soonest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/reminders?active=true"
		if all {
			path = "/reminders"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var reminders []reminderView
		if err := decodeJSON(resp, &reminders); err != nil {
			return err
		}

		if len(reminders) == 0 {
			fmt.Println("No reminders.")
			return nil
		}

		for _, r := range reminders {
			marker := " "
			switch {
			case !r.Enabled:
				marker = colorize(colorYellow, "✔")
			case r.Snoozed:
				marker = colorize(colorCyan, "z")
			}
			recur := ""
			if r.Recurrence != "" && r.Recurrence != "NONE" {
				recur = "  " + colorize(colorCyan, r.Recurrence)
			}
			fmt.Printf("%s %s  %s  %s%s\n",
				marker,
				colorize(colorBold, r.ID[:8]),
				r.EffectiveAt,
				r.Title,
				recur,
			)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("all", false, "include completed and disabled reminders")
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single reminder as JSON",
	Long: `Show a single reminder as JSON.

Any unique prefix of the full id works, e.g. the shortened ids printed
by "remindd list".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/reminders/"+args[0])
		if err != nil {
			return err
		}

		var reminder any
		if err := decodeJSON(resp, &reminder); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reminder)
	},
}

// --- edit ---

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a reminder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		// Fetch the current state so unset flags keep their values.
		resp, err := client.get(cmd.Context(), "/reminders/"+args[0])
		if err != nil {
			return err
		}
		var current reminderView
		if err := decodeJSON(resp, &current); err != nil {
			return err
		}

		title := current.Title
		if cmd.Flags().Changed("title") {
			title, _ = cmd.Flags().GetString("title")
		}
		notes := current.Notes
		if cmd.Flags().Changed("notes") {
			notes, _ = cmd.Flags().GetString("notes")
		}
		at := current.At
		if cmd.Flags().Changed("at") {
			at, _ = cmd.Flags().GetString("at")
		}
		recur := current.Recurrence
		if cmd.Flags().Changed("recur") {
			recur, _ = cmd.Flags().GetString("recur")
		}
		enabled := current.Enabled
		if cmd.Flags().Changed("enabled") {
			enabled, _ = cmd.Flags().GetBool("enabled")
		}

		resp, err = client.put(cmd.Context(), "/reminders/"+args[0], map[string]any{
			"title":      title,
			"notes":      notes,
			"at":         at,
			"recurrence": recur,
			"enabled":    enabled,
		})
		if err != nil {
			return err
		}

		var updated reminderView
		if err := decodeJSON(resp, &updated); err != nil {
			return err
		}

		printSuccess("Updated reminder %s", updated.ID[:8])
		return nil
	},
}

func init() {
	editCmd.Flags().String("title", "", "new title")
	editCmd.Flags().String("notes", "", "new notes")
	editCmd.Flags().String("at", "", "new datetime")
	editCmd.Flags().String("recur", "", "new recurrence rule")
	editCmd.Flags().Bool("enabled", true, "enable or disable the reminder")
}

// --- rm ---

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a reminder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/reminders/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted reminder %s", args[0])
		return nil
	},
}

// --- snooze ---

var snoozeCmd = &cobra.Command{
	Use:   "snooze <id>",
	Short: "Push a reminder to a later time",
	Long: `Push a reminder to a later time. The id may be any unique prefix
of the full id, as printed by "remindd list".

Examples:
  remindd snooze 4f1c9a2e --preset 0
  remindd snooze 4f1c9a2e --until "2026-03-01 14:00"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		until, _ := cmd.Flags().GetString("until")
		preset, _ := cmd.Flags().GetInt("preset")

		body := map[string]any{}
		switch {
		case until != "":
			body["until"] = until
		case cmd.Flags().Changed("preset"):
			body["preset"] = preset
		default:
			return fmt.Errorf("one of --until or --preset is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reminders/"+args[0]+"/snooze", body)
		if err != nil {
			return err
		}

		var snoozed reminderView
		if err := decodeJSON(resp, &snoozed); err != nil {
			return err
		}

		printSuccess("Snoozed %q until %s", snoozed.Title, snoozed.SnoozeUntil)
		return nil
	},
}

func init() {
	snoozeCmd.Flags().String("until", "", `snooze target datetime, e.g. "2026-03-01 14:00"`)
	snoozeCmd.Flags().Int("preset", 0, "snooze preset index (see: remindd presets)")
}

// --- done ---

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a one-shot reminder complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reminders/"+args[0]+"/complete", map[string]any{})
		if err != nil {
			return err
		}

		var completed reminderView
		if err := decodeJSON(resp, &completed); err != nil {
			return err
		}

		printSuccess("Completed %q", completed.Title)
		return nil
	},
}

// --- dismiss ---

var dismissCmd = &cobra.Command{
	Use:   "dismiss <id>",
	Short: "Clear a reminder's notification without changing its schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reminders/"+args[0]+"/dismiss", map[string]any{})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Dismissed notification for %s", args[0])
		return nil
	},
}

// --- presets ---

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Show snooze presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/snooze-presets")
		if err != nil {
			return err
		}

		var result struct {
			Presets []string `json:"presets"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for i, p := range result.Presets {
			fmt.Printf("  %s %s\n", colorize(colorBold, fmt.Sprintf("[%d]", i)), p)
		}
		return nil
	},
}

var presetsSetCmd = &cobra.Command{
	Use:   "set <presets>",
	Short: "Replace the snooze presets",
	Long: `Replace the snooze presets with a comma-separated list.

Each preset is minutes ("15m"), days ("2d") or a wall-clock time ("09:00").

Example:
  remindd presets set "5m,30m,120m,1d,09:00"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parts := strings.Split(args[0], ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/snooze-presets", map[string]any{"presets": parts})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Presets updated: %s", strings.Join(parts, ", "))
		return nil
	},
}

func init() {
	presetsCmd.AddCommand(presetsSetCmd)
}

// --- backup ---

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write or restore plain-text backups",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Write a timestamped backup now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/backups", map[string]any{})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Backup written: %s", result["name"])
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Replace all reminders with a backup's contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This replaces ALL reminders with the backup's contents. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/backups/restore", map[string]any{"name": args[0]})
		if err != nil {
			return err
		}

		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Restored %d reminders from %s", result["restored"], args[0])
		return nil
	},
}

func init() {
	backupRestoreCmd.Flags().Bool("confirm", false, "confirm the destructive restore")
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Additively import reminders from a delimited text file",
	Long: `Additively import reminders from a delimited text file.

The file needs a header row with at least "title" and "datetime" columns;
"notes" and "recurrence" are optional. Both comma and pipe separators work.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading import file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postRaw(cmd.Context(), "/import", data)
		if err != nil {
			return err
		}

		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result["skipped"] > 0 {
			printWarning("Skipped %d malformed rows", result["skipped"])
		}
		printSuccess("Imported %d reminders", result["accepted"])
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
