package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "aisbot",
	Short: "aisbot — AI agent runtime",
	Long: "aisbot: a message-bus-driven AI agent runtime with context compression, " +
		"tool-policy enforcement, and an MCP tool proxy.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGateway(resolveConfigPath())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yaml or $AISBOT_CONFIG)")
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(runCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the aisbot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent gateway: wire config, bus, providers, tools, and start the loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(resolveConfigPath())
		},
	}
}

// resolveConfigPath picks the config file: --config flag, then
// $AISBOT_CONFIG, then the working-directory default.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("AISBOT_CONFIG"); v != "" {
		return v
	}
	return "config.yaml"
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
