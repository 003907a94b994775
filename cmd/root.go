package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the noon application
var rootCmd = &cobra.Command{
	Use:   "noon",
	Short: "Turns calendar requests into structured actions",
	Long: `noon resolves natural-language calendar requests ("move my dentist
appointment to Friday at 3") into one structured action record. It reads
your calendars to ground the request but never writes on its own; records
are applied explicitly.

It can run as:
  - A CLI tool (noon resolve "...")
  - An HTTP API and MCP server for assistants (noon serve)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// configPath is the --config persistent flag.
var configPath string

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "noon version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the file named by --config, NOON_CONFIG or the default
// location, in that order.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	path, explicit := configPath, cmd.Flags().Changed("config")
	if !explicit {
		if env := os.Getenv("NOON_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultConfigPath()
		}
	}
	return LoadConfig(path, explicit)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config file. Can also use NOON_CONFIG env var. Default: <user config dir>/noon/config.yaml")

	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
