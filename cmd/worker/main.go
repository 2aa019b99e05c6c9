package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cogmanager/internal/app"
	"cogmanager/internal/config"
	"cogmanager/pkg/logger"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "worker",
		Short:         "Cognitive manager background worker",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(outboxCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config and wires the shared resources.
func bootstrap() (*app.App, *zap.Logger, error) {
	log := logger.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, log, err
	}
	a, err := app.New(cfg, log)
	if err != nil {
		return nil, log, err
	}
	return a, log, nil
}
