// Package cmd defines and implements the CLI commands for the jobcrawler executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-job-crawler/internal/config"
)

// newRootCmd creates the root command. Every subcommand shares v, so flags,
// environment and the config file resolve through one precedence chain.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "jobcrawler",
		Short: "Collects job postings from search-result pages.",
		Long: `jobcrawler runs a bounded crawl of job-search results: it paginates a
keyword search, extracts postings with layered strategies, rotates request
identities when the target pushes back and stops at the requested quota.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.Bool("dev", false, "human-friendly development logging")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")
	cobra.CheckErr(bindFlags(v, flags, map[string]string{
		"dev":       "logging.development",
		"log-level": "logging.level",
	}))

	cmd.AddCommand(newCrawlCmd(v, &cfgFile))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(config.NewViper()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
