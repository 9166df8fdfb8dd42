package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LJTian/CryptoCourier/internal/app"
	"github.com/LJTian/CryptoCourier/internal/config"
	"github.com/LJTian/CryptoCourier/internal/logger"
	"github.com/LJTian/CryptoCourier/internal/pipeline"
	"github.com/LJTian/CryptoCourier/internal/state"
)

var flagDryRun bool

// 一个仅执行一次任务的命令行入口：适合手动触发采集或调试
var rootCmd = &cobra.Command{
	Use:          "collect",
	Short:        "Run one CryptoCourier job and exit",
	SilenceUsage: true,
}

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Collect, filter and publish news once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Pipeline.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Publish the price snapshot once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Prices.Run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false,
		"print messages to stdout instead of sending them and never save state")
	rootCmd.AddCommand(newsCmd, pricesCmd)
}

func build() (*app.App, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagDryRun {
		cfg, err = config.Parse()
		if err == nil {
			err = cfg.ValidateOffline()
		}
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile, Writer: os.Stderr})

	var ov app.Overrides
	if flagDryRun {
		ov.Publisher = &stdoutPublisher{}
		ov.WrapStore = func(s pipeline.StateStore) pipeline.StateStore { return readOnlyStore{inner: s} }
		ov.DisableHistory = true
	}
	return app.Build(cfg, ov)
}

type stdoutPublisher struct{}

func (stdoutPublisher) Publish(ctx context.Context, dest, text, imageURL string) error {
	fmt.Fprintf(os.Stdout, "----- to %s", dest)
	if imageURL != "" {
		fmt.Fprintf(os.Stdout, " (image: %s)", imageURL)
	}
	fmt.Fprintf(os.Stdout, "\n%s\n", text)
	return nil
}

// readOnlyStore 读取真实状态以便去重，但从不写回
type readOnlyStore struct {
	inner pipeline.StateStore
}

func (r readOnlyStore) Load(ctx context.Context) *state.State {
	return r.inner.Load(ctx)
}

func (readOnlyStore) Save(ctx context.Context, st *state.State) error {
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
