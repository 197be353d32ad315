package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage rehydration sessions",
}

var sessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions",
	Run: func(_ *cobra.Command, _ []string) {
		var resp struct {
			Sessions []map[string]any `json:"sessions"`
		}
		if err := newAPIClient().get("/api/v1/sessions", &resp); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Printf("%d sessions\n", len(resp.Sessions))
		for _, s := range resp.Sessions {
			tokens, _ := s["tokens"].([]any)
			fmt.Printf("  %v (tokens: %d, expires: %v)\n", s["sessionId"], len(tokens), s["expiresAt"])
		}
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		var resp map[string]string
		if err := newAPIClient().delete("/api/v1/sessions/"+args[0], &resp); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println("deleted:", args[0])
	},
}

var sessionsHydrateCmd = &cobra.Command{
	Use:   "hydrate <id> <text>",
	Short: "Hydrate placeholders in text back to their originals for a session",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		var resp struct {
			Text string `json:"text"`
		}
		body := map[string]any{"text": args[1]}
		if err := newAPIClient().post("/api/v1/sessions/"+args[0]+"/hydrate", body, &resp); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println(resp.Text)
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsLsCmd, sessionsRmCmd, sessionsHydrateCmd)
}
