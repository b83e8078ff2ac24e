// Package cmd defines the sitecrawler command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/logging"
)

// flagKeys maps each command line flag to the config key it overrides.
var flagKeys = map[string]string{
	"concurrency":          "crawler.concurrency",
	"maxRequestsPerSecond": "crawler.max_requests_per_second",
	"followDepth":          "crawler.follow_depth",
	"timeout":              "crawler.timeout_ms",
	"user-agent":           "crawler.user_agent",
	"max-retries":          "crawler.max_retries",
	"dev":                  "logging.development",
	"metrics-addr":         "metrics.addr",
}

// deps are the process-wide collaborators a command run needs. Tests swap them
// for buffers and a private registry.
type deps struct {
	stdout     io.Writer
	stderr     io.Writer
	registerer prometheus.Registerer
	newLogger  func(development bool) (*zap.Logger, error)
}

func defaultDeps() deps {
	return deps{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		registerer: prometheus.DefaultRegisterer,
		newLogger:  logging.New,
	}
}

// newRootCmd creates the root command. The crawl runs directly from it; there
// are no subcommands.
func newRootCmd(d deps) *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "sitecrawler [flags] <url>",
		Short: "Crawl every page reachable from a URL on the same host.",
		Long: `sitecrawler fetches the seed URL, follows every same-host link it finds
up to the configured depth, and prints each visited page followed by the
links discovered on it. Requests are bounded by a concurrency ceiling and a
request-rate ceiling; transient failures are retried with backoff.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			seed, err := crawler.NormalizeURL(args[0])
			if err != nil {
				return fmt.Errorf("invalid url %q: %w", args[0], err)
			}

			logger, err := d.newLogger(cfg.Logging.Development)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()
			restore := zap.ReplaceGlobals(logger)
			defer restore()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runCrawl(ctx, d, cfg, seed, logger)
		},
	}
	cmd.SetOut(d.stdout)
	cmd.SetErr(d.stderr)

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a YAML/JSON/TOML config file")
	flags.Int("concurrency", 1, "maximum number of requests in flight")
	flags.Float64("maxRequestsPerSecond", 2, "maximum request starts per second (0 disables throttling)")
	flags.Int("followDepth", 3, "number of link hops to follow from the seed")
	flags.Int("timeout", 0, "stop the crawl after this many milliseconds (0 disables)")
	flags.String("user-agent", crawler.DefaultUserAgent, "User-Agent header sent with every request")
	flags.Int("max-retries", 5, "attempts per URL before it is dead-lettered")
	flags.Bool("dev", false, "human-readable debug logging")
	flags.String("metrics-addr", "", "serve /healthz, /metrics and /status on this address")

	mustBindFlags(v, cmd)
	return cmd
}

func mustBindFlags(v *viper.Viper, cmd *cobra.Command) {
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := execute(context.Background(), defaultDeps(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, d deps, args []string) error {
	cmd := newRootCmd(d)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("sitecrawler: %w", err)
	}
	return nil
}
