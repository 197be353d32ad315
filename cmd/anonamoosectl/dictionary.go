package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dictCmd = &cobra.Command{
	Use:   "dictionary",
	Short: "Manage the server-side redaction dictionary",
}

var dictListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dictionary entries",
	Run: func(_ *cobra.Command, _ []string) {
		var resp struct {
			Entries []map[string]any `json:"entries"`
			Total   int              `json:"total"`
		}
		if err := newAPIClient().get("/api/v1/dictionary", &resp); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Printf("%d entries (%d total)\n", len(resp.Entries), resp.Total)
		for _, e := range resp.Entries {
			fmt.Printf("  %-30v -> %v\n", e["term"], e["replacement"])
		}
	},
}

var (
	dictCaseSensitive bool
	dictWholeWord     bool
)

var dictAddCmd = &cobra.Command{
	Use:   "add <term> <replacement>",
	Short: "Add a dictionary entry",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		body := map[string]any{
			"term":          args[0],
			"replacement":   args[1],
			"caseSensitive": dictCaseSensitive,
			"wholeWord":     dictWholeWord,
		}
		if err := newAPIClient().post("/api/v1/dictionary", body, nil); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println("added")
	},
}

var dictRmCmd = &cobra.Command{
	Use:   "rm <term> [term...]",
	Short: "Remove dictionary entries by term",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		c := newAPIClient()
		var resp map[string]any
		if err := c.do("DELETE", "/api/v1/dictionary/by-terms", map[string]any{"terms": args}, &resp); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println("removed:", args)
	},
}

func init() {
	rootCmd.AddCommand(dictCmd)
	dictCmd.AddCommand(dictListCmd, dictAddCmd, dictRmCmd)
	dictAddCmd.Flags().BoolVar(&dictCaseSensitive, "case-sensitive", false, "match term case-sensitively")
	dictAddCmd.Flags().BoolVar(&dictWholeWord, "whole-word", false, "match term on word boundaries only")
}
