package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cogmanager/contracts/mq"
	"cogmanager/internal/config"
	"cogmanager/internal/mqhandler"
	"cogmanager/internal/scheduler"
	pkgmq "cogmanager/pkg/mq"
	"cogmanager/pkg/otel"
	"cogmanager/pkg/outbox"
	"cogmanager/pkg/util"
)

const pushRequestedQueue = "push.requested.q"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daily reminder scheduler, the outbox dispatcher and the push.requested consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	a, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	if a.Publisher == nil {
		return errors.New("worker requires rabbitmq: outbox dispatch and consumers cannot run without it")
	}

	shutdownTracing, err := otel.Init(a.Config.Otel, Version, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scheduler
	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	sched := scheduler.New(loc, log)
	for _, job := range a.Config.Scheduler.Jobs {
		hh, mm, err := config.ParseClock(job.At)
		if err != nil {
			return err
		}
		check := job.Check
		sched.Add(scheduler.Job{
			Name:   check,
			Hour:   hh,
			Minute: mm,
			Fn: func(ctx context.Context) error {
				res, err := a.Reminders.Run(ctx, check)
				if err != nil {
					return err
				}
				log.Info("Scheduled check finished",
					zap.String("check", check),
					zap.Int("checked", res.Checked),
					zap.Int("sent", res.Sent),
				)
				return nil
			},
		})
	}
	sched.Start(ctx)
	log.Info("Scheduler started", zap.Int("jobs", len(a.Config.Scheduler.Jobs)))

	// Outbox dispatcher
	dispatcher := outbox.NewDispatcher(a.Outbox, a.Publisher, log)
	go dispatcher.Start(ctx)

	// push.requested consumer
	log.Info("Initializing MQ consumer for push.requested...",
		zap.String("queue", pushRequestedQueue),
		zap.String("routing_key", mq.RoutingPushRequested),
	)
	consumer, err := pkgmq.NewConsumer(a.Config.MQ.URL, pushRequestedQueue, mq.RoutingPushRequested, a.Publisher, log)
	if err != nil {
		return fmt.Errorf("init push.requested consumer: %w", err)
	}
	defer consumer.Close()

	handler := mqhandler.NewPushRequestedHandler(a.Pushes, util.NewDeduper(a.Redis, 24*time.Hour, log), log)
	consumer.SetHandler(handler.Handle)

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- consumer.StartConsuming()
	}()

	log.Info("worker is fully initialized and running")

	select {
	case <-ctx.Done():
	case err := <-consumeErr:
		if err != nil {
			log.Error("push.requested consumer failed", zap.Error(err))
		}
		stop()
	}

	log.Info("Shutting down worker gracefully...")
	consumer.Stop()
	sched.Wait()
	log.Info("worker shutdown complete")
	return nil
}
