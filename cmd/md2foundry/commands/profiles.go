package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect and manage export profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openProfileStore()
		if err != nil {
			return err
		}
		for _, p := range store.List() {
			var targets []string
			if p.ExportClipboard {
				targets = append(targets, string(profile.TargetClipboard))
			}
			if p.ExportFile {
				targets = append(targets, string(profile.TargetFile))
			}
			if p.ExportFoundry {
				targets = append(targets, string(profile.TargetFoundry))
			}
			line := fmt.Sprintf("%-20s targets: %s", p.Name, strings.Join(targets, ","))
			if p.Destination.Journal != "" {
				line += fmt.Sprintf("  journal: %s", p.Destination.Journal)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print one profile as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openProfileStore()
		if err != nil {
			return err
		}
		p, err := store.Get(args[0])
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(p)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var profilesInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Write a starter profile file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
		})

		path := args[0]
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := profile.NewStore().SaveFile(path); err != nil {
			return err
		}
		logInfo("profile file written to %s", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
	profilesCmd.AddCommand(profilesInitCmd)
}

// openProfileStore loads the configured profile file, or the seeded
// defaults when none is set.
func openProfileStore() (*profile.Store, error) {
	if path := viper.GetString("profiles"); path != "" {
		return profile.LoadFile(path)
	}
	return profile.NewStore(), nil
}
