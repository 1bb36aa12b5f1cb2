// Package app はコマンドライン引数の解析と、各サブコマンドの依存関係のワイヤリングを行う。
package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/kolboard/internal/apiclient"
	"github.com/hitoshi/kolboard/internal/config"
	"github.com/hitoshi/kolboard/internal/metrics"
)

// version はビルド時に -ldflags で上書きする。
var version = "dev"

// cli はサブコマンド間で共有する状態。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	log    *slog.Logger
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドを省略した場合はserveとして起動する。
func Run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand はkolboardのコマンドツリーを生成する。
// ログはstderrに出力し、earnings・browseの結果はstdoutに出力する。
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "kolboard",
		Short:         "Earnings calendar and trending lists API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
			if cmd.Name() == "healthcheck" {
				return nil
			}
			cfg, log, err := Init(stderr)
			if err != nil {
				return err
			}
			c.cfg, c.log = cfg, log
			c.log.Debug("starting command", slog.String("command", cmd.Name()))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), c.cfg, c.log)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		c.serveCommand(),
		c.migrateCommand(),
		c.healthcheckCommand(),
		c.earningsCommand(),
		c.browseCommand(),
	)
	return root
}

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), c.cfg, c.log)
		},
	}
}

func (c *cli) migrateCommand() *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(c.cfg, c.log, down)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "Roll back the given number of migrations instead of applying")
	return cmd
}

func (c *cli) healthcheckCommand() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check that the local API server is healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "8080"
				}
				baseURL = "http://localhost:" + port
			}
			return runHealthcheck(cmd.Context(), baseURL)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Server base URL (default http://localhost:$SERVER_PORT)")
	return cmd
}

func (c *cli) earningsCommand() *cobra.Command {
	var opts earningsOptions

	cmd := &cobra.Command{
		Use:   "earnings",
		Short: "Print the earnings calendar as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildEarningsService(c.cfg, c.log, metrics.Nop{})
			if err != nil {
				return err
			}
			return runEarnings(cmd.Context(), svc, c.stdout, c.log, opts, time.Now(), c.cfg.DefaultRangeDays)
		},
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "Start date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.To, "to", "", "End date YYYY-MM-DD (default from + DEFAULT_RANGE_DAYS)")
	cmd.Flags().StringVar(&opts.Symbol, "symbol", "", "Only events for this symbol")
	cmd.Flags().BoolVar(&opts.NoEnrich, "no-enrich", false, "Skip company profile enrichment")
	return cmd
}

func (c *cli) browseCommand() *cobra.Command {
	var (
		opts    browseOptions
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Page through trending lists from a running API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				baseURL = c.cfg.APIBaseURL
			}
			client := apiclient.NewClient(apiclient.WithBaseURL(baseURL))
			return runBrowse(cmd.Context(), client, c.stdout, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Resource, "resource", "creators", "List to browse: creators, tickers or topics")
	cmd.Flags().StringSliceVar(&opts.Platforms, "platform", []string{apiclient.SourceAll}, "Platform tabs to load (reddit, x, youtube or all)")
	cmd.Flags().StringVar(&opts.Creator, "creator", "", "Browse posts of this creator ID instead of a list")
	cmd.Flags().StringVar(&opts.SortBy, "sort", "", "Sort key (default depends on resource)")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "Sort direction: asc or desc")
	cmd.Flags().IntVar(&opts.Pages, "pages", 1, "Number of pages to load per tab")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 20, "Items per page (1-100)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (default API_BASE_URL)")
	return cmd
}
