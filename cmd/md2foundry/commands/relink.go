package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/foundry"
)

var relinkCmd = &cobra.Command{
	Use:   "relink",
	Short: "Rewrite cross-note links inside uploaded journal entries",
	Long: `Relink scans every journal entry of the world session for links
that still point at vault paths and rewrites them to Foundry document
references, so entries link each other inside the world.

With --install-macro the rewrite runs inside Foundry instead: a script
macro is installed into the world and can be triggered from there at
any time.

Examples:
  md2foundry relink --relay-url wss://relay.example.com/ws -k $FOUNDRY_API_KEY

  md2foundry relink --relay-url wss://relay.example.com/ws --install-macro`,
	RunE: runRelink,
}

func init() {
	rootCmd.AddCommand(relinkCmd)

	flags := relinkCmd.Flags()
	flags.StringP("profile", "p", "", "profile name for connection defaults")
	flags.String("relay-url", "", "websocket URL of the Foundry relay")
	flags.StringP("api-key", "k", "", "relay API key (or use env var)")
	flags.String("session", "", "world session id (default: sole live session)")
	flags.String("user", "", "Foundry username for headless login")
	flags.String("password", "", "Foundry password for headless login (or use env var)")
	flags.Duration("timeout", 30*time.Second, "per-call relay timeout")
	flags.Bool("install-macro", false, "install the relink macro into the world instead of relinking now")

	_ = viper.BindPFlag("profile", flags.Lookup("profile"))
	_ = viper.BindPFlag("relay_url", flags.Lookup("relay-url"))
	_ = viper.BindPFlag("api_key", flags.Lookup("api-key"))
	_ = viper.BindPFlag("password", flags.Lookup("password"))
}

func runRelink(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prof, err := loadProfile()
	if err != nil {
		logger.Error("failed to load profile", "error", err)
		return err
	}

	client, err := connectRelay(ctx, cmd, prof)
	if err != nil {
		logger.Error("failed to connect to relay", "error", err)
		return err
	}
	defer func() { _ = client.Close() }()

	if install, _ := cmd.Flags().GetBool("install-macro"); install {
		if err := client.InstallRelinkMacro(ctx); err != nil {
			logger.Error("failed to install macro", "error", err)
			return err
		}
		logInfo("macro %q installed", foundry.MacroName)
		return nil
	}

	syncer := foundry.NewSyncer(client, prof)
	report, err := syncer.Relink(ctx)
	if report == nil {
		logger.Error("relink failed", "error", err)
		return err
	}
	if err != nil {
		for _, name := range report.Failed {
			logError("entry %q not updated", name)
		}
		logger.Error("relink finished with errors", "error", err)
	}

	logger.Info("relink complete",
		"entries_scanned", report.EntriesScanned,
		"entries_updated", report.EntriesUpdated,
		"links_rewritten", report.LinksRewritten,
		"unresolved", report.LinksUnresolved)

	return nil
}
