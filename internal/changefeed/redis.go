package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis fans change events out over pub/sub so several API instances can share one
// database listener (see Relay).
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedis(client *redis.Client, log zerolog.Logger) *Redis {
	return &Redis{client: client, log: log.With().Str("component", "redis_feed").Logger()}
}

func (r *Redis) Publish(ctx context.Context, ev RawEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Channel(ev.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Table, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, table string) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, Channel(table))
	// Receive blocks until the server confirms the subscription.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrTransportDisconnected, table, err)
	}

	sub, subCtx := newSubscription(ctx, table)
	go func() {
		defer ps.Close()
		for {
			// ReceiveMessage surfaces network errors instead of reconnecting behind our back,
			// which would hide a gap in delivery.
			msg, err := ps.ReceiveMessage(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					sub.finish(nil)
				} else {
					sub.finish(fmt.Errorf("%w: %v", ErrTransportDisconnected, err))
				}
				return
			}

			var ev RawEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn().Err(err).Str("table", table).Msg("dropping undecodable message")
				continue
			}
			select {
			case sub.events <- ev:
			case <-subCtx.Done():
				sub.finish(nil)
				return
			}
		}
	}()
	return sub, nil
}
