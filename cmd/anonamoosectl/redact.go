package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var redactLocale string

var redactCmd = &cobra.Command{
	Use:   "redact <text>",
	Short: "Redact PII from text via the server's direct /redact endpoint",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		text := strings.Join(args, " ")
		body := map[string]any{"text": text}
		if redactLocale != "" {
			body["locale"] = redactLocale
		}
		var resp struct {
			RedactedText string           `json:"redactedText"`
			SessionID    string           `json:"sessionId"`
			Detections   []map[string]any `json:"detections"`
		}
		if err := newAPIClient().post("/api/v1/redact", body, &resp); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println(resp.RedactedText)
		fmt.Fprintf(os.Stderr, "session: %s, detections: %d\n", resp.SessionID, len(resp.Detections))
		if showRedactStats {
			encoded, _ := json.MarshalIndent(resp.Detections, "", "  ")
			fmt.Fprintln(os.Stderr, string(encoded))
		}
	},
}

var showRedactStats bool

func init() {
	rootCmd.AddCommand(redactCmd)
	redactCmd.Flags().StringVar(&redactLocale, "locale", "", "override the configured detection locale (e.g. US, UK)")
	redactCmd.Flags().BoolVar(&showRedactStats, "stats", false, "print per-detection detail to stderr")
}
