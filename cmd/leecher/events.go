package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leecher/internal/events"
	"leecher/internal/logging"
	"leecher/internal/shotgrid"

	"github.com/spf13/cobra"
)

var (
	eventsFlags  shotgridFlags
	eventsCursor int64
	eventsFollow time.Duration
)

// eventsCmd печатает новые ассеты из журнала событий Shotgrid.
// Синхронизацию по событиям не запускает.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print asset creation events from the Shotgrid event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := eventsFlags.credentials()
		if err := creds.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logging.Component(logger, "events")
		client := shotgrid.NewClient(ctx, creds, shotgrid.Options{
			RPS:     cfg.Shotgrid.RPS,
			Timeout: time.Duration(cfg.Shotgrid.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
		poller := shotgrid.NewEventPoller(client, eventsCursor, cfg.Shotgrid.EventBatch, log)

		out := cmd.OutOrStdout()
		bus := events.NewEventBus()
		bus.Subscribe(events.EventNewShotgridAsset, func(ev *events.Event) error {
			_, err := fmt.Fprintln(out, string(ev.Payload))
			return err
		})

		for {
			batch, err := poller.Poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			for _, ev := range batch {
				if err := bus.PublishJSON(events.EventNewShotgridAsset, ev); err != nil {
					log.Error().Err(err).Int64("event_id", ev.EventID).Msg("publish asset event")
				}
			}
			log.Debug().Int("events", len(batch)).Int64("cursor", poller.Cursor()).Msg("event log polled")

			if eventsFollow <= 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(eventsFollow):
			}
		}
	},
}

func init() {
	eventsFlags.bind(eventsCmd)
	eventsCmd.Flags().Int64Var(&eventsCursor, "after", 0, "start after this event log id")
	eventsCmd.Flags().DurationVar(&eventsFollow, "follow", 0, "keep polling at this interval (0 polls once)")
	rootCmd.AddCommand(eventsCmd)
}
