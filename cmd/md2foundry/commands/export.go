package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
	"github.com/CePeU/MarkdownToFoundry-sub001/internal/report"
	"github.com/CePeU/MarkdownToFoundry-sub001/internal/vault"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/export"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/foundry"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

var exportCmd = &cobra.Command{
	Use:   "export [note ...]",
	Short: "Transform notes and deliver them to the configured targets",
	Long: `Export renders the given notes (vault-relative paths), runs the
profile's transformation pipeline and delivers the HTML to every target
the profile enables.

Clipboard output goes to stdout, or into the program named by
--clipboard-cmd (pbcopy, xclip); file output lands next to each note
unless --output moves it.

Examples:
  # One note to stdout
  md2foundry export --vault ~/notes "Dragons/The Red Dragon.md"

  # A folder into Foundry, with metadata writeback
  md2foundry export --vault ~/notes --dir Dragons --profile campaign \
      --relay-url wss://relay.example.com/ws -k $FOUNDRY_API_KEY

  # Everything, written as .html files into a separate tree
  md2foundry export --vault ~/notes --all --target file -o ./site

  # Batch run with a machine-readable report
  md2foundry export --vault ~/notes --all --report run.jsonl`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	flags := exportCmd.Flags()

	// Note selection
	flags.StringP("dir", "d", "", "export every note under this vault folder")
	flags.Bool("all", false, "export every note in the vault")

	// Profile and targets
	flags.StringP("profile", "p", "", "profile name (default: the seeded default profile)")
	flags.StringSlice("target", nil, "override profile targets: clipboard, file, foundry")
	flags.StringP("output", "o", "", "directory for file target output (default: next to each note)")
	flags.String("clipboard-cmd", "", "pipe clipboard output into this command instead of stdout")

	// Relay connection
	flags.String("relay-url", "", "websocket URL of the Foundry relay")
	flags.StringP("api-key", "k", "", "relay API key (or use env var)")
	flags.String("session", "", "world session id (default: sole live session)")
	flags.String("user", "", "Foundry username for headless login")
	flags.String("password", "", "Foundry password for headless login (or use env var)")
	flags.Duration("timeout", 30*time.Second, "per-call relay timeout")

	// Run settings
	flags.IntP("concurrency", "c", 3, "concurrent note exports")
	flags.Bool("dry-run", false, "run the pipeline without delivering anything")
	flags.String("report", "", "write a per-note run report to this file")
	flags.String("report-format", "", "report format: json, jsonl or yaml (default: by file extension)")

	// Bind to viper
	_ = viper.BindPFlag("profile", flags.Lookup("profile"))
	_ = viper.BindPFlag("relay_url", flags.Lookup("relay-url"))
	_ = viper.BindPFlag("api_key", flags.Lookup("api-key"))
	_ = viper.BindPFlag("password", flags.Lookup("password"))
}

func runExport(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Debug("export command starting")

	vaultPath := viper.GetString("vault")
	if vaultPath == "" {
		return fmt.Errorf("vault path is required (--vault or MD2FOUNDRY_VAULT)")
	}
	v, err := vault.Open(vaultPath)
	if err != nil {
		logger.Error("failed to open vault", "path", vaultPath, "error", err)
		return err
	}
	logger.Debug("vault opened", "path", vaultPath, "notes", len(v.Notes()))

	prof, err := loadProfile()
	if err != nil {
		logger.Error("failed to load profile", "error", err)
		return err
	}

	// Target overrides
	if targets, _ := cmd.Flags().GetStringSlice("target"); len(targets) > 0 {
		prof.ExportClipboard, prof.ExportFile, prof.ExportFoundry = false, false, false
		for _, t := range targets {
			switch profile.Target(t) {
			case profile.TargetClipboard:
				prof.ExportClipboard = true
			case profile.TargetFile:
				prof.ExportFile = true
			case profile.TargetFoundry:
				prof.ExportFoundry = true
			default:
				return fmt.Errorf("unknown target: %s (use clipboard, file or foundry)", t)
			}
		}
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		prof.ExportClipboard, prof.ExportFile, prof.ExportFoundry = false, false, false
		prof.AutoRelink = false
		logger.Info("dry run, nothing will be delivered")
	}

	// Resolve the note list
	notePaths := args
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		for _, n := range v.NotesUnder(dir) {
			notePaths = append(notePaths, n.Path)
		}
	}
	if all, _ := cmd.Flags().GetBool("all"); all {
		notePaths = notePaths[:0]
		for _, n := range v.Notes() {
			notePaths = append(notePaths, n.Path)
		}
	}
	if len(notePaths) == 0 {
		return cmd.Help()
	}
	logger.Debug("notes to export", "count", len(notePaths))

	// Wire the relay only when the profile actually uploads
	var client *foundry.Client
	if prof.ExportFoundry {
		client, err = connectRelay(ctx, cmd, prof)
		if err != nil {
			logger.Error("failed to connect to relay", "error", err)
			return err
		}
		defer func() { _ = client.Close() }()
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	outputDir, _ := cmd.Flags().GetString("output")

	clip := io.Writer(os.Stdout)
	var clipPipe *clipboardPipe
	if cmdline, _ := cmd.Flags().GetString("clipboard-cmd"); strings.TrimSpace(cmdline) != "" {
		clipPipe = &clipboardPipe{ctx: ctx, argv: strings.Fields(cmdline)}
		clip = clipPipe
	}

	opts := []export.Option{
		export.WithVault(v),
		export.WithProfile(prof),
		export.WithClipboard(clip),
		export.WithConcurrency(concurrency),
	}
	if outputDir != "" {
		opts = append(opts, export.WithOutputDir(outputDir))
	}
	if client != nil {
		opts = append(opts, export.WithClient(client))
	}

	ex, err := export.New(opts...)
	if err != nil {
		logger.Error("failed to initialize exporter", "error", err)
		return err
	}

	logger.Info("starting export",
		"notes", len(notePaths),
		"profile", prof.Name,
		"concurrency", concurrency)

	batch := ex.ExportBatch(ctx, notePaths)

	for _, res := range batch.Results {
		if res.Error != nil {
			logError("%s: %v", res.Path, res.Error)
			continue
		}
		line := fmt.Sprintf("%s (%s", res.Path, humanize.Bytes(uint64(len(res.HTML))))
		if res.Remote != nil {
			if res.Remote.Created {
				line += fmt.Sprintf(", created %s", res.Remote.RemoteID)
			} else {
				line += fmt.Sprintf(", updated %s", res.Remote.RemoteID)
			}
		}
		line += ")"
		logInfo("%s", line)

		for _, w := range res.Warnings {
			logger.Warn("pipeline warning", "note", res.Path, "warning", w.String())
		}
	}

	if batch.Relink != nil {
		logger.Info("links relinked",
			"entries_updated", batch.Relink.EntriesUpdated,
			"links_rewritten", batch.Relink.LinksRewritten,
			"unresolved", batch.Relink.LinksUnresolved)
	}
	if batch.RelinkErr != nil {
		logError("relink: %v", batch.RelinkErr)
	}

	if clipPipe != nil {
		if err := clipPipe.flush(); err != nil {
			logError("clipboard: %v", err)
		}
	}

	if reportPath, _ := cmd.Flags().GetString("report"); reportPath != "" {
		format, _ := cmd.Flags().GetString("report-format")
		if err := writeReport(reportPath, format, batch); err != nil {
			logger.Error("failed to write report", "path", reportPath, "error", err)
			return err
		}
		logger.Debug("report written", "path", reportPath)
	}

	logger.Info("export complete",
		"exported", batch.Exported,
		"failed", batch.Failed,
		"duration", batch.Duration.Round(time.Millisecond))

	return nil
}

// loadProfile resolves the active profile from the profile file when one
// is configured, falling back to the seeded default store.
func loadProfile() (*profile.Profile, error) {
	store, err := openProfileStore()
	if err != nil {
		return nil, err
	}
	return store.GetOrDefault(viper.GetString("profile")), nil
}

// connectRelay dials the relay and settles on a world session: explicit
// flag or profile value first, headless login when credentials are set,
// otherwise the sole live session.
func connectRelay(ctx context.Context, cmd *cobra.Command, prof *profile.Profile) (*foundry.Client, error) {
	relayURL := viper.GetString("relay_url")
	if relayURL == "" {
		relayURL = prof.Connection.RelayURL
	}
	if relayURL == "" {
		return nil, fmt.Errorf("relay URL is required (--relay-url or profile connection)")
	}

	apiKey := viper.GetString("api_key")
	if apiKey == "" {
		apiKey = prof.Connection.APIKey
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if prof.Connection.TimeoutSeconds > 0 && !cmd.Flags().Changed("timeout") {
		timeout = time.Duration(prof.Connection.TimeoutSeconds) * time.Second
	}

	client, err := foundry.Dial(ctx, relayURL, apiKey, foundry.WithCallTimeout(timeout))
	if err != nil {
		return nil, err
	}

	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = prof.Connection.Username
	}
	if prof.HeadlessLogin || user != "" {
		password := viper.GetString("password")
		if password == "" {
			password = prof.Connection.Password
		}
		sessionID, err := foundry.Login(ctx, relayURL, user, password)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		client.UseSession(sessionID)
		logger.Debug("headless login succeeded", "user", user)
		return client, nil
	}

	session, _ := cmd.Flags().GetString("session")
	if session == "" {
		session = prof.Connection.SessionID
	}
	if session != "" {
		client.UseSession(session)
		return client, nil
	}

	sessions, err := client.ListSessions(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if len(sessions) == 1 {
		client.UseSession(sessions[0].ID)
		logger.Debug("using sole live session", "world", sessions[0].World)
		return client, nil
	}
	_ = client.Close()
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no live world session on the relay")
	}
	for _, s := range sessions {
		logInfo("  session %s: %s", s.ID, s.World)
	}
	return nil, fmt.Errorf("%d live sessions, pick one with --session", len(sessions))
}

// writeReport serializes the batch outcome, one record per note. An empty
// format falls back to the file extension.
func writeReport(path, format string, batch *export.BatchReport) error {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".ndjson":
			format = string(report.FormatJSONL)
		case ".yaml", ".yml":
			format = string(report.FormatYAML)
		default:
			format = string(report.FormatJSON)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w, err := report.NewWriter(f, report.Format(format))
	if err != nil {
		return err
	}
	if err := w.WriteAll(report.FromBatch(batch)); err != nil {
		return err
	}
	return w.Close()
}

// clipboardPipe buffers clipboard deliveries from concurrent exports and
// feeds them to an external command once the batch is done.
type clipboardPipe struct {
	ctx  context.Context
	argv []string

	mu  sync.Mutex
	buf bytes.Buffer
}

func (p *clipboardPipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *clipboardPipe) flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Len() == 0 {
		return nil
	}

	c := exec.CommandContext(p.ctx, p.argv[0], p.argv[1:]...)
	c.Stdin = &p.buf
	if out, err := c.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", p.argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
