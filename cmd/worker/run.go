package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cogmanager/internal/config"
	"cogmanager/pkg/trace"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run <check>",
		Short:     "Run one reminder check now and print its tally as JSON",
		Long:      "Run one reminder check now. Valid checks: " + strings.Join(config.Checks, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.Checks,
		RunE: func(cmd *cobra.Command, args []string) error {
			check := args[0]
			if !config.IsCheck(check) {
				return fmt.Errorf("unknown check %q (valid: %s)", check, strings.Join(config.Checks, ", "))
			}

			a, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			ctx := trace.WithContext(context.Background(), trace.GenerateTraceID())
			res, err := a.Reminders.Run(ctx, check)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
