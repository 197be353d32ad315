package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and change redaction settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get all settings, or a single setting by key",
	Args:  cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		c := newAPIClient()
		if len(args) == 1 {
			var raw json.RawMessage
			path := "/api/v1/settings/" + args[0]
			if err := c.get(path, &raw); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			fmt.Println(string(raw))
			return
		}
		var snap map[string]any
		if err := c.get("/api/v1/settings", &snap); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		encoded, _ := json.MarshalIndent(snap, "", "  ")
		fmt.Println(string(encoded))
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <json-value>",
	Short: "Set one setting. json-value is parsed as JSON (e.g. true, 0.7, \"US\")",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		var value json.RawMessage
		if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
			fmt.Fprintln(os.Stderr, "invalid JSON value:", err)
			os.Exit(1)
		}
		body := map[string]json.RawMessage{args[0]: value}
		var snap map[string]any
		if err := newAPIClient().put("/api/v1/settings", body, &snap); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println("updated")
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
}
