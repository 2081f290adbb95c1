// Package commands implements the CLI commands for md2foundry.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "md2foundry",
	Short: "Export Obsidian markdown notes as Foundry VTT journal entries",
	Long: `md2foundry renders vault notes to HTML, runs them through a
configurable transformation pipeline and delivers the result to the
clipboard, to files, or straight into a Foundry VTT world through a
relay.

Examples:
  # Transform one note and print it (pipe into pbcopy / xclip)
  md2foundry export --vault ~/notes "Dragons/The Red Dragon.md"

  # Export a whole folder into a Foundry world
  md2foundry export --vault ~/notes --dir Dragons \
      --relay-url wss://relay.example.com/ws --profile campaign

  # Rewrite cross-note links after everything is uploaded
  md2foundry relink --relay-url wss://relay.example.com/ws`,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.md2foundry.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().String("vault", "", "path to the note vault")
	rootCmd.PersistentFlags().String("profiles", "", "path to a profile file (JSON or YAML)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("vault", rootCmd.PersistentFlags().Lookup("vault"))
	_ = viper.BindPFlag("profiles", rootCmd.PersistentFlags().Lookup("profiles"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".md2foundry")
		viper.SetConfigType("yaml")
	}

	// Environment variables
	viper.SetEnvPrefix("MD2FOUNDRY")
	viper.AutomaticEnv()

	// Also check common relay credential env vars
	_ = viper.BindEnv("api_key", "MD2FOUNDRY_API_KEY", "FOUNDRY_API_KEY")
	_ = viper.BindEnv("password", "MD2FOUNDRY_PASSWORD", "FOUNDRY_PASSWORD")

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
