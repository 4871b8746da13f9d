// Package server provides the HTTP API and WebSocket feed
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/fake-detector/internal/config"
	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/metrics"
	"github.com/GriffinCanCode/fake-detector/internal/orchestrator"
	"github.com/GriffinCanCode/fake-detector/internal/reference"
	"github.com/GriffinCanCode/fake-detector/internal/syncx"
	"github.com/GriffinCanCode/fake-detector/internal/trace"
	pb "github.com/GriffinCanCode/fake-detector/pkg/pb"
)

// Checker is the detector behind the API.
type Checker interface {
	IsFake(ctx context.Context, videoPath string) (*orchestrator.Verdict, error)
	IndexStatus() reference.Status
}

// Message is the envelope every WebSocket message shares.
type Message struct {
	Type string `json:"type"`
}

// CheckMessage asks for a video to be checked.
type CheckMessage struct {
	Type    string `json:"type"`
	Path    string `json:"path"`
	TraceID string `json:"trace_id,omitempty"`
}

// VerdictMessage carries a verdict, either as a reply or a broadcast.
type VerdictMessage struct {
	Type    string     `json:"type"`
	Verdict pb.Verdict `json:"verdict"`
}

// ErrorMessage reports a failed request.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// CheckRequest is the POST /api/check body.
type CheckRequest struct {
	Path string `json:"path"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// client is one WebSocket connection. Broadcasts are queued on send and written by
// the connection's own goroutine.
type client struct {
	conn    *websocket.Conn
	send    chan any
	limiter rateLimiter
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	checker Checker
	history *syncx.History[pb.Verdict]
	clients *syncx.RWGuard[map[*client]struct{}]
}

// New creates a server. Register Publish as a verdict hook to feed the WebSocket clients.
func New(checker Checker) *Server {
	return &Server{
		checker: checker,
		history: syncx.NewHistory[pb.Verdict](VerdictHistorySize),
		clients: syncx.NewGuard(make(map[*client]struct{})),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/check", s.handleCheck)
	mux.HandleFunc("GET /api/index", s.handleIndex)
	mux.HandleFunc("GET /api/verdicts", s.handleVerdicts)

	// trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

// Publish records v and queues it for every connected client. It never blocks: a client
// whose queue is full misses the broadcast.
func (s *Server) Publish(v orchestrator.Verdict) {
	wire := v.Wire()
	s.history.Push(wire)
	msg := VerdictMessage{Type: TypeVerdict, Verdict: wire}

	s.clients.Write(func(m *map[*client]struct{}) {
		for c := range *m {
			select {
			case c.send <- msg:
			default:
				trace.Logger(context.Background()).Warn("websocket client too slow, verdict dropped", "file", v.Path)
			}
		}
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid request body"), "")
		return
	}
	v, err := s.check(r.Context(), req.Path)
	if err != nil {
		writeError(w, err, req.Path)
		return
	}
	writeJSON(w, http.StatusOK, v.Wire())
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, orchestrator.WireStatus(s.checker.IndexStatus()))
}

func (s *Server) handleVerdicts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.history.Snapshot())
}

// check validates the path and runs the detector.
func (s *Server) check(ctx context.Context, raw string) (*orchestrator.Verdict, error) {
	path, err := config.ParsePath(raw)
	if err != nil {
		return nil, err
	}
	return s.checker.IsFake(ctx, path)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	c := &client{conn: conn, send: make(chan any, ClientSendBuffer)}
	s.clients.Write(func(m *map[*client]struct{}) { (*m)[c] = struct{}{} })
	metrics.WebSocketClients.Inc()
	defer func() {
		s.clients.Write(func(m *map[*client]struct{}) { delete(*m, c) })
		metrics.WebSocketClients.Dec()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.writeLoop(ctx, c)

	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			c.reply(ErrorMessage{Type: TypeError, Code: string(apperrors.CodeUnavailable), Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(raw, &base); err != nil {
			c.reply(ErrorMessage{Type: TypeError, Code: string(apperrors.CodeInvalidArgument), Message: "invalid message"})
			continue
		}

		switch base.Type {
		case TypeCheck:
			var msg CheckMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			msgCtx := ctx
			if tc, ok := trace.ExtractFromJSON(raw); ok {
				msgCtx = trace.WithContext(ctx, tc)
			}
			// Checks run off the read loop so a slow video does not stall the socket
			go s.handleCheckMessage(msgCtx, c, msg.Path)
		default:
			c.reply(ErrorMessage{Type: TypeError, Code: string(apperrors.CodeInvalidArgument), Message: "unknown message type " + base.Type})
		}
	}
}

func (s *Server) handleCheckMessage(ctx context.Context, c *client, path string) {
	ctx, span := trace.StartSpan(ctx, "ws_check")
	defer span.End()

	// The verdict itself reaches this client through Publish
	if _, err := s.check(ctx, path); err != nil {
		span.SetAttr("error", err.Error())
		c.reply(ErrorMessage{Type: TypeError, Code: string(apperrors.CodeOf(err)), Message: err.Error(), Path: path})
	}
}

// reply queues msg for c without blocking.
func (c *client) reply(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				trace.Logger(ctx).Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error, path string) {
	code := apperrors.CodeOf(err)
	writeJSON(w, httpStatus(code), ErrorMessage{Type: TypeError, Code: string(code), Message: err.Error(), Path: path})
}

// httpStatus maps an error code to a response status.
func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument, apperrors.CodeConfigInvalid:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeUnavailable, apperrors.CodeIndexBuildFailed:
		return http.StatusServiceUnavailable
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.CodeFrameExtractionFailed, apperrors.CodeDurationProbeFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ListenAndServe runs the handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	trace.Logger(ctx).Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
