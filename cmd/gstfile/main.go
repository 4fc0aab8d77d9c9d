// Package main contains the gstfile CLI, which runs the filing pipeline over
// a local text or PDF file and prints JSON.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/castlemilk/gstfiling/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// cli carries state resolved by the root command's pre-run.
type cli struct {
	cfgFile string
	stderr  io.Writer
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	c := &cli{stderr: stderr}
	v := viper.New()

	root := &cobra.Command{
		Use:   "gstfile",
		Short: "Classify and extract GST invoices from documents",
		Long: `gstfile runs the GST filing pipeline over a local document.

Documents are split into chunks, classified as outward (GSTR-1) or inward
(GSTR-2) supplies, narrowed to a filing period and turned into validated,
deduplicated and categorized invoices.

Examples:
  gstfile classify invoices.pdf
  gstfile filter invoices.txt --month March --year 2024
  gstfile run invoices.pdf --return-type GSTR-1 --month March --year 2024 --gstin 27AAAAA0000A1Z5`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, c.cfgFile)
			if err != nil {
				return err
			}
			logger, err := config.SetupLogger(c.stderr, cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default: ./gstfile.yaml or ~/.config/gstfile/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")
	_ = v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(c.classifyCmd())
	root.AddCommand(c.filterCmd())
	root.AddCommand(c.runCmd())
	root.AddCommand(versionCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stderr).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gstfile %s\n", version)
		},
	}
}
