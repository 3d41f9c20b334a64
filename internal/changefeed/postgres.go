package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Postgres listens on the NOTIFY channel fed by the row trigger installed by database.InstallChangeFeed.
// Each subscription holds its own connection, so a dropped connection ends exactly one subscription.
type Postgres struct {
	connString string
	log        zerolog.Logger
}

func NewPostgres(connString string, log zerolog.Logger) *Postgres {
	return &Postgres{connString: connString, log: log.With().Str("component", "pg_feed").Logger()}
}

func (p *Postgres) Subscribe(ctx context.Context, table string) (*Subscription, error) {
	conn, err := pgx.Connect(ctx, p.connString)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrTransportDisconnected, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel(table)}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("%w: listen %s: %v", ErrTransportDisconnected, table, err)
	}

	sub, subCtx := newSubscription(ctx, table)
	go func() {
		defer conn.Close(context.Background())
		for {
			n, err := conn.WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					sub.finish(nil)
				} else {
					sub.finish(fmt.Errorf("%w: %v", ErrTransportDisconnected, err))
				}
				return
			}

			var ev RawEvent
			if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
				p.log.Warn().Err(err).Str("table", table).Msg("dropping undecodable notification")
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
