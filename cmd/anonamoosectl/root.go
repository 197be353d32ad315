// Command anonamoosectl is a thin HTTP client for the anonamoose management
// API: dictionary add/list/rm, sessions ls/rm, settings get/set, and a
// one-shot redact call. It holds no redaction logic of its own.
//
// Grounded on censgate-redact's cmd/redactctl command layout and
// cobra.OnInitialize-driven viper config loading.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serverURL string
	apiToken  string
	cfgFile   string
)

var rootCmd = &cobra.Command{
	Use:   "anonamoosectl",
	Short: "anonamoose management API client",
	Long: `anonamoosectl talks to a running anonamoose server's management API
over HTTP. It provides dictionary, session, and settings administration,
plus a one-shot redact call for scripting.`,
	Version: "v0.1.0",
}

// Execute adds all child commands to the root command. Called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./anonamoosectl.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8787", "anonamoose server base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "API_TOKEN bearer credential")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("anonamoosectl")
	}
	viper.SetEnvPrefix("ANONAMOOSECTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	if !rootCmd.PersistentFlags().Changed("server") {
		if v := viper.GetString("server"); v != "" {
			serverURL = v
		}
	}
	if !rootCmd.PersistentFlags().Changed("token") {
		if v := viper.GetString("token"); v != "" {
			apiToken = v
		}
	}
}
