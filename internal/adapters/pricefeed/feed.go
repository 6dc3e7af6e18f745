// Package pricefeed maintains a live spot price cache over a WebSocket
// stream. Consumers read the latest quote synchronously; the feed
// reconnects with backoff when the stream drops.
package pricefeed

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
	"hermes/pkg/reconnect"
)

// Config describes the upstream stream
type Config struct {
	URL     string
	Symbols []string
	Timeout time.Duration
	// MaxAge bounds how stale a quote may be before Latest refuses it
	MaxAge time.Duration
}

type quote struct {
	price decimal.Decimal
	at    time.Time
}

// Feed is a reconnecting spot price stream
type Feed struct {
	cfg Config
	log *logger.Logger
	rc  *reconnect.Manager

	mu     sync.RWMutex
	quotes map[string]quote

	updates atomic.Int64
}

// tickerMessage is one price update on the wire
type tickerMessage struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	TS     int64           `json:"ts"`
}

// subscribeMessage is sent once per connection
type subscribeMessage struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// New creates a price feed. Start must be called before Latest returns
// anything.
func New(cfg Config) *Feed {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = time.Minute
	}
	return &Feed{
		cfg:    cfg,
		log:    logger.Get().With("component", "pricefeed"),
		rc:     reconnect.NewManager(reconnect.Config{}),
		quotes: make(map[string]quote),
	}
}

// Start runs the read loop until ctx is cancelled. Connection loss is
// handled inside with exponential backoff; Start only returns on
// cancellation.
func (f *Feed) Start(ctx context.Context) error {
	for {
		if err := f.rc.Wait(ctx); err != nil {
			return err
		}

		err := f.run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.rc.RecordFailure()
		metrics.FeedReconnects.WithLabelValues("failed").Inc()
		f.log.Warnw("Price feed connection lost, reconnecting",
			"error", err,
			"failures", f.rc.Failures(),
		)
	}
}

// run holds one connection from dial to failure
func (f *Feed) run(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: f.cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", f.cfg.URL)
	}
	defer conn.Close()

	sub := subscribeMessage{Op: "subscribe", Symbols: f.cfg.Symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return errors.Wrap(err, "subscribe")
	}

	f.rc.RecordSuccess()
	metrics.FeedReconnects.WithLabelValues("success").Inc()
	f.log.Infow("Price feed connected",
		"url", f.cfg.URL,
		"symbols", f.cfg.Symbols,
	)

	// Unblock ReadMessage when ctx is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		// A silent connection past MaxAge is as useless as a dead one;
		// let the deadline kill it so the backoff loop redials.
		if err := conn.SetReadDeadline(time.Now().Add(f.cfg.MaxAge)); err != nil {
			return errors.Wrap(err, "set read deadline")
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}
		f.rc.RecordMessage()

		var msg tickerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			f.log.Warnw("Dropping malformed ticker message", "error", err)
			continue
		}
		if msg.Symbol == "" || msg.Price.Sign() <= 0 {
			continue
		}

		f.mu.Lock()
		f.quotes[msg.Symbol] = quote{price: msg.Price, at: time.Now()}
		f.mu.Unlock()

		f.updates.Add(1)
		metrics.FeedUpdates.WithLabelValues(msg.Symbol).Inc()
	}
}

// Latest returns the newest spot quote for a symbol. A quote older
// than MaxAge is treated as missing rather than silently served.
func (f *Feed) Latest(symbol string) (decimal.Decimal, error) {
	f.mu.RLock()
	q, ok := f.quotes[symbol]
	f.mu.RUnlock()

	if !ok {
		return decimal.Zero, errors.Wrapf(errors.ErrNotFound, "no quote for %s", symbol)
	}
	if time.Since(q.at) > f.cfg.MaxAge {
		return decimal.Zero, errors.Wrapf(errors.ErrNotFound, "quote for %s is stale (%s old)", symbol, time.Since(q.at).Round(time.Second))
	}
	return q.price, nil
}

// Updates reports how many quotes have been received since start
func (f *Feed) Updates() int64 {
	return f.updates.Load()
}
