package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/ispitch/internal/notify"
	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

const wsWriteTimeout = 10 * time.Second

var errStreamIdle = errors.New("api: stream idle")

// subscribe opens the event stream of the analysis named in the path and
// returns the stored record as of after the subscription started, so no
// transition can fall between the two. On failure the response has been
// written.
func (s *Server) subscribe(c *gin.Context) (notify.Subscription, *analysis.Analysis, bool) {
	id := c.Param("id")
	sub, err := s.deps.Broker.Subscribe(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return nil, nil, false
	}
	a, ok := s.owned(c, id)
	if !ok {
		sub.Close()
		return nil, nil, false
	}
	return sub, a, true
}

// snapshot returns the events that bring a new subscriber up to date with a.
func snapshot(a *analysis.Analysis) []analysis.Event {
	if a.Status == analysis.StatusCompleted {
		if ev, err := analysis.ResultEvent(a); err == nil {
			return []analysis.Event{ev, analysis.StatusEvent(a.Status)}
		}
	}
	return []analysis.Event{analysis.StatusEvent(a.Status)}
}

// pump forwards events to emit until a terminal status went out, the
// subscription ends, ctx is done or nothing arrived for the idle timeout.
// ping, when set, runs on every heartbeat tick.
func (s *Server) pump(ctx context.Context, sub notify.Subscription, first []analysis.Event, emit func(analysis.Event) error, ping func() error) error {
	for _, ev := range first {
		if err := emit(ev); err != nil {
			return err
		}
		if ev.IsTerminal() {
			return nil
		}
	}

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return errStreamIdle
		case <-heartbeat.C:
			if ping == nil {
				continue
			}
			if err := ping(); err != nil {
				return err
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := emit(ev); err != nil {
				return err
			}
			if ev.IsTerminal() {
				return nil
			}
			idle.Reset(s.idleTimeout)
		}
	}
}

// handleStream serves progress as Server-Sent Events. Status updates carry
// the bare status name, results the analysis JSON.
func (s *Server) handleStream(c *gin.Context) {
	sub, a, ok := s.subscribe(c)
	if !ok {
		return
	}
	defer sub.Close()

	ctx := c.Request.Context()
	s.metrics.StreamSubscribers.Add(ctx, 1, metric.WithAttributes(observe.Attr("transport", "sse")))
	defer s.metrics.StreamSubscribers.Add(context.WithoutCancel(ctx), -1, metric.WithAttributes(observe.Attr("transport", "sse")))

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	emit := func(ev analysis.Event) error {
		c.SSEvent(string(ev.Event), ssePayload(ev))
		c.Writer.Flush()
		return ctx.Err()
	}
	ping := func() error {
		if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	err := s.pump(ctx, sub, snapshot(a), emit, ping)
	s.logStreamEnd(ctx, a.ID, "sse", err)
}

func ssePayload(ev analysis.Event) string {
	if ev.Event == analysis.EventStatusUpdate {
		if st, err := ev.Status(); err == nil {
			return string(st)
		}
	}
	return string(ev.Data)
}

// handleWebSocket serves the same events as JSON envelopes over a WebSocket.
func (s *Server) handleWebSocket(c *gin.Context) {
	sub, a, ok := s.subscribe(c)
	if !ok {
		return
	}
	defer sub.Close()

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		observe.Logger(c.Request.Context()).Warn("websocket accept failed", "analysis_id", a.ID, "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(c.Request.Context())
	s.metrics.StreamSubscribers.Add(ctx, 1, metric.WithAttributes(observe.Attr("transport", "websocket")))
	defer s.metrics.StreamSubscribers.Add(context.WithoutCancel(ctx), -1, metric.WithAttributes(observe.Attr("transport", "websocket")))

	emit := func(ev analysis.Event) error {
		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		defer cancel()
		return wsjson.Write(wctx, conn, ev)
	}
	ping := func() error {
		pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		defer cancel()
		return conn.Ping(pctx)
	}

	err = s.pump(ctx, sub, snapshot(a), emit, ping)
	s.logStreamEnd(ctx, a.ID, "websocket", err)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "analysis finished")
	case errors.Is(err, errStreamIdle):
		conn.Close(websocket.StatusGoingAway, "idle timeout")
	}
}

func (s *Server) logStreamEnd(ctx context.Context, id, transport string, err error) {
	log := observe.Logger(ctx).With("analysis_id", id, "transport", transport)
	switch {
	case err == nil:
		log.Debug("stream finished")
	case errors.Is(err, errStreamIdle):
		log.Info("stream closed after idle timeout", "idle_timeout", s.idleTimeout)
	case errors.Is(err, context.Canceled):
		log.Debug("stream client went away")
	default:
		log.Warn("stream ended with error", "err", err)
	}
}
