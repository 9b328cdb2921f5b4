package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"volley/internal/banner"
	"volley/internal/cli"
	"volley/internal/control"
	"volley/internal/report"
	"volley/internal/runner"
	"volley/internal/storage"
	"volley/internal/tui"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "volley",
	Short: "Volley - synchronized burst load tester",
	Long: `
Volley fires N HTTP requests at the same instant.

Every worker is spawned and parked at a ready barrier first. Once the whole
cohort has arrived the fire gate opens and all requests leave together. The
run ends with a latency summary and a sample of the failures.

Rows from a CSV file (--data) can be bound into the URL, headers and body
with {{field "column"}}, {{index}}, {{label}} and {{uuid}}.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("url") == "" {
			return cmd.Help()
		}
		return runBurst(cmd.Context(), cmd.OutOrStdout())
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd)
	rootCmd.AddCommand(historyCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.volley.yaml)")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("history-db", "", "History database (default is $HOME/.volley/history.db)")

	def := control.DefaultConfig()
	f := rootCmd.Flags()
	f.StringP("url", "u", "", "Target URL, may be a template")
	f.StringP("method", "X", def.Method, "HTTP Method")
	f.StringSliceP("header", "H", []string{}, "HTTP Header (e.g. \"Key: Value\")")
	f.StringP("body", "b", "", "Request Body, may be a template")
	f.IntP("workers", "n", def.Workers, "Workers in the burst (0 with --data means one per row)")
	f.Int("max-inflight", 0, "Cap on concurrent requests after fire (0 means no cap)")
	f.Duration("timeout", def.RequestTimeout, "Per-request timeout")
	f.Duration("overall-timeout", def.OverallTimeout, "Deadline for the whole burst, counted from fire")
	f.Duration("ready-timeout", 0, "Deadline for the ready barrier (0 waits indefinitely)")
	f.Bool("degraded", false, "Fire with the workers that are ready when --ready-timeout expires")
	f.Float64P("percentile", "p", def.Percentile, "Latency percentile to report")
	f.Int("samples", def.SampleSize, "Failures to show in the summary")
	f.StringP("data", "d", "", "CSV file with one row per worker")
	f.StringP("expect", "e", "", "JMESPath expression the JSON response must satisfy")
	f.BoolP("insecure", "k", false, "Skip TLS certificate verification")
	f.StringP("out", "o", "", "Output filename prefix for <out>.csv and <out>_summary.json")
	f.Bool("history", true, "Save the run to the history database")
	f.Bool("tui", false, "Show the live view while the burst runs")

	viper.BindPFlags(pf)
	viper.BindPFlags(f)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".volley")
		}
	}
	viper.SetEnvPrefix("VOLLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
	}
}

// configFromViper resolves flags, env and config file into one Config.
func configFromViper() control.Config {
	return control.Config{
		URL:            viper.GetString("url"),
		Method:         viper.GetString("method"),
		Headers:        parseHeaders(viper.GetStringSlice("header")),
		Body:           viper.GetString("body"),
		Workers:        viper.GetInt("workers"),
		MaxInFlight:    viper.GetInt("max-inflight"),
		RequestTimeout: viper.GetDuration("timeout"),
		OverallTimeout: viper.GetDuration("overall-timeout"),
		ReadyTimeout:   viper.GetDuration("ready-timeout"),
		Degraded:       viper.GetBool("degraded"),
		Percentile:     viper.GetFloat64("percentile"),
		SampleSize:     viper.GetInt("samples"),
		DataFile:       viper.GetString("data"),
		Expect:         viper.GetString("expect"),
		Insecure:       viper.GetBool("insecure"),
	}
}

func parseHeaders(raw []string) map[string]string {
	headers := make(map[string]string)
	for _, h := range raw {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", format)
	}
}

func openHistory() (*storage.Store, error) {
	path := viper.GetString("history-db")
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return storage.Open(path)
}

func runBurst(ctx context.Context, out io.Writer) error {
	logger, err := newLogger(os.Stderr, viper.GetString("log-level"), viper.GetString("log-format"))
	if err != nil {
		return err
	}

	c := control.NewController(configFromViper())
	c.Logger = logger

	if prefix := viper.GetString("out"); prefix != "" {
		c.Sinks = append(c.Sinks, report.FileSink{Prefix: prefix})
	}
	if viper.GetBool("history") {
		store, err := openHistory()
		if err != nil {
			logger.Warn("history_unavailable", "error", err)
		} else {
			defer store.Close()
			c.Sinks = append(c.Sinks, store)
		}
	}

	var r *control.Report
	if viper.GetBool("tui") {
		r, err = tui.Run(ctx, c, out)
		if r != nil {
			report.Render(out, r)
		}
	} else {
		r, err = cli.Start(ctx, c, out)
	}
	if err != nil {
		if errors.Is(err, runner.ErrInvalidConfig) {
			return fmt.Errorf("%w\nRun 'volley --help' for usage", err)
		}
		return err
	}
	if prefix := viper.GetString("out"); prefix != "" {
		fmt.Fprintf(out, "✅ Reports saved to %s.csv and %s_summary.json\n", prefix, prefix)
	}
	return nil
}
