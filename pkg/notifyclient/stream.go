package notifyclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jwalitptl/contract-admin/pkg/resilience"
)

// ErrStreamClosed is returned when the server ends the stream.
var ErrStreamClosed = errors.New("notification stream closed by server")

const (
	eventConnected    = "connected"
	eventNotification = "notification"
)

// Handler receives each pushed notification.
type Handler func(Notification)

type sseEvent struct {
	name string
	data string
}

// Stream opens the live channel, registers it for userID and calls handler
// for every pushed notification. It returns nil once ctx is cancelled.
// Opening the stream is gated by the circuit breaker but bypasses the
// limiter, which would otherwise hold an in-flight slot for its lifetime.
func (c *Client) Stream(ctx context.Context, userID int64, handler Handler) error {
	breaker := c.governor.Breaker()
	if err := breaker.Allow(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+"/notifications/stream", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		breaker.RecordFailure()
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		serr := &resilience.StatusError{StatusCode: resp.StatusCode, Body: body}
		if resilience.CountsAsFailure(serr) {
			breaker.RecordFailure()
		}
		return serr
	}
	breaker.RecordSuccess()

	err = readEvents(resp.Body, func(ev sseEvent) error {
		switch ev.name {
		case eventConnected:
			var hello struct {
				ConnectionID string `json:"connection_id"`
			}
			if err := json.Unmarshal([]byte(ev.data), &hello); err != nil {
				return fmt.Errorf("decode connected event: %w", err)
			}
			if err := c.Register(ctx, userID, hello.ConnectionID); err != nil {
				return fmt.Errorf("register stream: %w", err)
			}
			c.logger.Debug("stream registered", zap.Int64("user_id", userID), zap.String("connection_id", hello.ConnectionID))
		case eventNotification:
			var push pushEvent
			if err := json.Unmarshal([]byte(ev.data), &push); err != nil || push.Notification == nil {
				c.logger.Warn("dropping malformed push", zap.String("data", ev.data), zap.Error(err))
				return nil
			}
			handler(*push.Notification)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		return ErrStreamClosed
	}
	return err
}

// readEvents parses a text/event-stream body, calling fn per dispatched
// event. Comment lines, used for heartbeats, are skipped.
func readEvents(r io.Reader, fn func(sseEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		ev   sseEvent
		data []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 || ev.name != "" {
				ev.data = strings.Join(data, "\n")
				if ev.name == "" {
					ev.name = "message"
				}
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev, data = sseEvent{}, nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.name = value
		case "data":
			data = append(data, value)
		}
	}
	return scanner.Err()
}
