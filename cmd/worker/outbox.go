package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay outbox events",
	}
	cmd.AddCommand(outboxFailedCmd())
	cmd.AddCommand(outboxReplayCmd())
	return cmd
}

func outboxFailedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List events that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			a, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			events, err := a.Outbox.GetFailedEvents(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No failed events")
				return nil
			}
			for _, e := range events {
				fmt.Printf("%d\t%s\tretries=%d\tcreated=%s\n",
					e.ID, e.RoutingKey, e.RetryCount, e.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 50, "Maximum number of events to list")
	return cmd
}

func outboxReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <event-id>",
		Short: "Reset a failed event so the dispatcher publishes it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}

			a, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			ctx := context.Background()
			event, err := a.Outbox.GetEventByID(ctx, id)
			if err != nil {
				return err
			}
			if err := a.Outbox.ResetForReplay(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Event %d (%s) queued for replay\n", event.ID, event.RoutingKey)
			return nil
		},
	}
}
