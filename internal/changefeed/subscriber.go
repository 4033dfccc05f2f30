package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/citypulse/citypulse/internal/domain"
)

const (
	cursorServiceName  = "changefeed"
	cursorSaveInterval = 5 * time.Second
	reconnectDelay     = 5 * time.Second
)

var eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "citypulse_changefeed_events_total",
	Help: "Change feed events processed, by kind.",
}, []string{"kind"})

// Handler receives validated change-feed mutations. Both callbacks are
// invoked from the subscriber's goroutine.
type Handler interface {
	ApplyInsert(p domain.Pulse)
	ApplyDelete(city string, id int64)
}

// Subscriber connects to the store's push channel and delivers per-city
// insert and delete events.
type Subscriber struct {
	url     string
	handler Handler
	cursors domain.CursorStore
	logger  *slog.Logger
}

// NewSubscriber creates a new change-feed subscriber.
func NewSubscriber(
	feedURL string,
	handler Handler,
	cursors domain.CursorStore,
	logger *slog.Logger,
) *Subscriber {
	return &Subscriber{
		url:     feedURL,
		handler: handler,
		cursors: cursors,
		logger:  logger,
	}
}

// Start connects to the change feed and processes events until the context
// is cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("change feed connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) string {
	u, _ := url.Parse(s.url)
	q := u.Query()
	q.Set("collection", "pulses")
	if cursor > 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	cursor, err := s.cursors.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
	}

	wsURL := s.buildURL(cursor)
	s.logger.Info("connecting to change feed", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial change feed: %w", err)
	}
	defer conn.Close()

	s.logger.Info("connected to change feed")

	lastCursorSave := time.Now()
	var latestCursor int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}
		latestCursor = event.Seq

		s.handleEvent(event)

		if time.Since(lastCursorSave) >= cursorSaveInterval {
			if err := s.cursors.UpdateCursor(ctx, cursorServiceName, latestCursor); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			} else {
				lastCursorSave = time.Now()
			}
		}
	}
}

func (s *Subscriber) handleEvent(event *feedEvent) {
	switch event.Kind {
	case "insert":
		p, err := event.Pulse.toDomain()
		if err != nil {
			// Malformed rows never cross into core logic.
			s.logger.Warn("dropping malformed pulse record", "seq", event.Seq, "error", err)
			return
		}
		eventsProcessed.WithLabelValues("insert").Inc()
		s.handler.ApplyInsert(*p)

	case "delete":
		eventsProcessed.WithLabelValues("delete").Inc()
		s.handler.ApplyDelete(event.City, event.PulseID)

	default:
		s.logger.Debug("ignoring unknown event kind", "kind", event.Kind, "seq", event.Seq)
	}
}
