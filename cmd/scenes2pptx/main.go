package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ivlev/scenes2pptx/internal/config"
	"github.com/ivlev/scenes2pptx/internal/logging"
	"github.com/spf13/cobra"
)

// set with -ldflags "-X main.buildVersion=..."
var buildVersion = "dev"

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[-] %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "scenes2pptx",
	Short:         "Assemble rendered scene clips into autoplaying PowerPoint slides",
	Long:          "scenes2pptx turns the partial movie files of rendered scenes into presentations with one full-screen, autoplaying clip per slide.",
	Version:       buildVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg.BuildVersion = buildVersion
		if verbose {
			cfg.Verbose = true
		}
		clog := logging.WithComponent("cli")
		clog.Debug().
			Str("version", buildVersion).
			Str("temp_dir", cfg.TempDir).
			Int("workers", cfg.Workers).
			Msg("configuration loaded")

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./scenes2pptx.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	addExportFlags(exportCmd)
	addExportFlags(onRenderedCmd)

	rootCmd.AddCommand(onRenderedCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(checkTemplateCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(inspectCmd)
}
