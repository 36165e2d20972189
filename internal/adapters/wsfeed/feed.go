// Package wsfeed streams live quote updates over the Binance combined
// miniTicker websocket stream. It is push-only: REST lookups stay with the
// binanceclient adapter, and the two are composed by the caller.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

const (
	defaultStreamURL    = "wss://stream.binance.com:9443/stream"
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxMessageSize      = 1 << 20 // 1MB
)

// Feed implements ports.QuoteStreamer over a raw websocket connection with
// automatic reconnection.
type Feed struct {
	url                  string
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	readTimeout          time.Duration
	writeTimeout         time.Duration
}

// Config holds configuration for the websocket feed.
type Config struct {
	URL                  string // Combined stream endpoint; defaults to Binance production
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Base delay between reconnect attempts
	MaxReconnectAttempts int           // Consecutive failed dials before giving up
	ReadTimeout          time.Duration // Watchdog: no message within this window forces a reconnect
}

// New creates a websocket quote feed.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for websocket feed")
	}
	url := cfg.URL
	if url == "" {
		url = defaultStreamURL
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &Feed{
		url:                  url,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		readTimeout:          readTimeout,
		writeTimeout:         defaultWriteTimeout,
	}, nil
}

// combinedEvent is the envelope of the Binance combined stream.
type combinedEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"` // Milliseconds since epoch
		Symbol    string `json:"s"`
		Close     string `json:"c"` // Last price
	} `json:"data"`
}

// StreamQuotes subscribes to miniTicker updates for the given exchange
// symbols and invokes handler for every quote. The stream reconnects with
// exponential backoff; after maxReconnectAttempts consecutive dial failures
// it reports through errHandler and closes doneCh. Sending on stopCh (or
// cancelling ctx) shuts the stream down.
func (f *Feed) StreamQuotes(ctx context.Context, symbols []string, handler func(q domain.Quote), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamQuotes"
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("%s: no symbols to subscribe: %w", op, ports.ErrInvalidRequest)
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	streamURL := f.url + "?streams=" + strings.Join(streams, "/")

	wsCtx, cancel := context.WithCancel(ctx)
	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			f.logger.Info(ctx, op+": received stop signal, shutting down stream")
			cancel()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		defer cancel()
		defer close(doneCh)

		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				return
			default:
			}

			conn, _, dialErr := websocket.DefaultDialer.DialContext(wsCtx, streamURL, nil)
			if dialErr != nil {
				attempt++
				wrapped := fmt.Errorf("%s dial attempt %d: %w: %v", op, attempt, ports.ErrConnectionFailed, dialErr)
				f.logger.Warn(wsCtx, op+": connection failed", map[string]interface{}{"attempt": attempt, "error": dialErr.Error()})
				if attempt >= f.maxReconnectAttempts {
					f.logger.Error(wsCtx, wrapped, op+": max reconnection attempts exceeded, giving up", map[string]interface{}{"maxAttempts": f.maxReconnectAttempts})
					errHandler(wrapped)
					return
				}
				// Exponential backoff between attempts.
				delay := f.reconnectDelay * time.Duration(1<<uint(attempt-1))
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			f.logger.Info(wsCtx, op+": websocket connected", map[string]interface{}{"streams": len(streams)})
			attempt = 0

			f.readLoop(wsCtx, conn, handler, errHandler)
			conn.Close()

			if wsCtx.Err() != nil {
				f.logger.Info(ctx, op+": context cancelled, stream closed")
				return
			}
			f.logger.Warn(wsCtx, op+": connection lost, reconnecting", map[string]interface{}{"delay": f.reconnectDelay.String()})
			select {
			case <-time.After(f.reconnectDelay):
			case <-wsCtx.Done():
				return
			}
		}
	}()

	return doneCh, stopCh, nil
}

// readLoop consumes messages until the connection breaks or the context is
// cancelled. The read deadline doubles as a watchdog: miniTicker streams tick
// about once a second, so a silent minute means a dead connection.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn, handler func(q domain.Quote), errHandler func(err error)) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(f.writeTimeout))
	})

	// Unblock ReadMessage when the context is cancelled.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readerDone:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				errHandler(fmt.Errorf("websocket read: %w: %v", ports.ErrConnectionFailed, err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))

		quote, err := parseQuote(message)
		if err != nil {
			f.logger.Debug(ctx, "Skipping unparsable stream message", map[string]interface{}{"error": err.Error()})
			continue
		}
		handler(quote)
	}
}

// parseQuote translates a combined-stream miniTicker message into a domain quote.
func parseQuote(message []byte) (domain.Quote, error) {
	var event combinedEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return domain.Quote{}, fmt.Errorf("unmarshal stream event: %w", err)
	}
	if event.Data.Symbol == "" {
		return domain.Quote{}, fmt.Errorf("stream event %q carries no symbol", event.Stream)
	}
	price, err := strconv.ParseFloat(event.Data.Close, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse price %q for %s: %w", event.Data.Close, event.Data.Symbol, err)
	}
	at := time.UnixMilli(event.Data.EventTime).UTC()
	if event.Data.EventTime == 0 {
		at = time.Now().UTC()
	}
	return domain.Quote{Symbol: event.Data.Symbol, Price: price, At: at}, nil
}
