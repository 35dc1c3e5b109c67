package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// eventStream writes Server-Sent Events to a client.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// openStream sends the event-stream headers. It fails when the writer cannot
// flush.
func openStream(w http.ResponseWriter, r *http.Request) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	// Streams outlive the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		zctx.From(r.Context()).Debug("Clear stream write deadline", zap.Error(err))
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher}, nil
}

func (s *eventStream) send(event string, encode func(e *jx.Encoder)) error {
	var e jx.Encoder
	encode(&e)
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, e.Bytes()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventStream) heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// stream relays values from ch as events until ch closes, the client leaves
// or a write fails. Keep-alive comments are sent every interval.
func stream[T any](r *http.Request, es *eventStream, interval time.Duration, ch <-chan T, event string, encode func(e *jx.Encoder, v T)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := es.heartbeat(); err != nil {
				return
			}
		case v, ok := <-ch:
			if !ok {
				return
			}
			if err := es.send(event, func(e *jx.Encoder) { encode(e, v) }); err != nil {
				return
			}
		}
	}
}
