// Command helpdesk-assistant is the companion process for the helpdesk
// reply-draft extension. serve runs the local bridge the extension connects
// to; detect, extract and sanitize drive the same platform layer offline
// against saved page snapshots.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zackkatz/freescout-gpt-assistant/internal/bridge"
	"github.com/zackkatz/freescout-gpt-assistant/internal/cli"
	"github.com/zackkatz/freescout-gpt-assistant/internal/config"
	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/manager"
	"github.com/zackkatz/freescout-gpt-assistant/internal/platform"
	"github.com/zackkatz/freescout-gpt-assistant/internal/sanitize"
	"github.com/zackkatz/freescout-gpt-assistant/internal/server"
	"github.com/zackkatz/freescout-gpt-assistant/internal/settings"

	// Platform bindings self-register with the adapter registry.
	_ "github.com/zackkatz/freescout-gpt-assistant/internal/adapter/freescout"
	_ "github.com/zackkatz/freescout-gpt-assistant/internal/adapter/helpscout"
)

var rootCmd = &cobra.Command{
	Use:   "helpdesk-assistant",
	Short: "Platform adaptation layer for helpdesk reply drafting",
}

func init() {
	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newSanitizeCmd())
	rootCmd.AddCommand(newServeCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "helpdesk-assistant: %v\n", err)
		os.Exit(1)
	}
}

func newDetectCmd() *cobra.Command {
	var (
		pageURL     string
		globalsPath string
		formatFlag  string
	)

	cmd := &cobra.Command{
		Use:   "detect <snapshot.html>",
		Short: "Report which platform a saved page snapshot belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(args[0], pageURL, globalsPath)
			if err != nil {
				return err
			}

			detector := platform.New(settings.NewMemory())
			kind := detector.Detect(cmd.Context(), snap)

			report := cli.DetectionReport{
				URL:      snap.URL(),
				Platform: kind.String(),
				Votes:    detector.LastVotes(),
			}
			return cli.WriteDetection(cmd.OutOrStdout(), report, formatFlag)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&pageURL, "url", "", "URL the snapshot was captured from")
	flags.StringVar(&globalsPath, "globals", "", "JSON file of mirrored window globals")
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, or json")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var (
		pageURL      string
		globalsPath  string
		formatFlag   string
		withCustomer bool
	)

	cmd := &cobra.Command{
		Use:   "extract <snapshot.html>",
		Short: "Extract the conversation thread from a saved page snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(args[0], pageURL, globalsPath)
			if err != nil {
				return err
			}

			mgr := manager.New(manager.Options{Store: settings.NewMemory()})
			defer mgr.Close()
			mgr.SetPage(snap)
			if err := mgr.Initialize(cmd.Context()); err != nil {
				return fmt.Errorf("no supported platform recognized: %w", err)
			}

			out := cmd.OutOrStdout()
			thread := mgr.ExtractThread(cmd.Context())
			if err := cli.WriteThread(out, thread, formatFlag, outputWidth(out)); err != nil {
				return err
			}
			if withCustomer {
				info := mgr.ExtractCustomerInfo(cmd.Context())
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&pageURL, "url", "", "URL the snapshot was captured from")
	flags.StringVar(&globalsPath, "globals", "", "JSON file of mirrored window globals")
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&withCustomer, "customer", false, "also print extracted customer info as JSON")
	return cmd
}

func newSanitizeCmd() *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "sanitize [file]",
		Short: "Sanitize HTML from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input []byte
			var err error
			if len(args) == 1 {
				input, err = os.ReadFile(args[0])
			} else {
				input, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			out := sanitize.Sanitize(string(input), sanitize.Options{Markdown: markdown})
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "convert the markdown subset to HTML")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local bridge the browser extension connects to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			opts := manager.Options{Store: store, AgentNames: cfg.AgentNames}
			diag := manager.New(opts)
			defer diag.Close()

			ws := bridge.NewHandler(opts, cfg.AllowedOrigins)
			engine := server.New(diag, ws)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", cfg.Addr)
			if err := server.Run(ctx, cfg.Addr, engine); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func openStore(cfg config.Config) (settings.Store, error) {
	if cfg.RedisURL != "" {
		return settings.OpenRedis(cfg.RedisURL)
	}
	return settings.OpenBolt(cfg.SettingsPath)
}

func loadSnapshot(path, pageURL, globalsPath string) (*dom.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var globals map[string]any
	if globalsPath != "" {
		rawGlobals, err := os.ReadFile(globalsPath)
		if err != nil {
			return nil, fmt.Errorf("read globals: %w", err)
		}
		if err := json.Unmarshal(rawGlobals, &globals); err != nil {
			return nil, fmt.Errorf("parse globals: %w", err)
		}
	}
	if pageURL == "" {
		pageURL = "file://" + strings.TrimPrefix(path, "./")
	}
	return dom.ParseSnapshot(pageURL, string(raw), &dom.SnapshotOptions{Globals: globals})
}

func outputWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return 0
	}
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		return w
	}
	return 0
}
