package changefeed

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Relay copies every event of the given tables from src to dst until ctx ends,
// resubscribing with backoff when src drops. Each time a table's subscription is
// established a reset event goes out first, since anything committed while the relay
// was not listening never reaches dst.
func Relay(ctx context.Context, src Source, dst Publisher, tables []string, backoff Backoff, log zerolog.Logger) {
	var wg sync.WaitGroup
	for _, table := range tables {
		wg.Add(1)
		go func(table string) {
			defer wg.Done()
			relayTable(ctx, src, dst, table, backoff, log.With().Str("table", table).Logger())
		}(table)
	}
	wg.Wait()
}

func relayTable(ctx context.Context, src Source, dst Publisher, table string, backoff Backoff, log zerolog.Logger) {
	attempt := 0
	for ctx.Err() == nil {
		sub, err := src.Subscribe(ctx, table)
		if err == nil {
			attempt = 0
			log.Info().Msg("relay subscribed")
			if err := dst.Publish(ctx, ResetEvent(table)); err != nil {
				log.Error().Err(err).Msg("relay reset publish failed")
			}
			for ev := range sub.Events() {
				if err := dst.Publish(ctx, ev); err != nil {
					log.Error().Err(err).Str("operation", ev.Operation).Msg("relay publish failed")
				}
			}
			err = sub.Err()
		}
		if ctx.Err() != nil {
			return
		}
		attempt++
		delay := backoff.Delay(attempt)
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("relay source dropped")
		if !Wait(ctx, delay) {
			return
		}
	}
}
