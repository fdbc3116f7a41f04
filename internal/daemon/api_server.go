package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelscope/internal/analyzer"
	"reelscope/internal/api"
	"reelscope/internal/config"
	"reelscope/internal/contentstore"
	"reelscope/internal/logging"
	"reelscope/internal/pipeline"
	"reelscope/internal/progress"
	"reelscope/internal/services"
	"reelscope/internal/workflow"
)

const (
	maxRequestBytes   = 64 << 10
	defaultKeepalive  = 15 * time.Second
	rateLimitedRetry  = "5"
	defaultLogLimit   = 200
	shutdownTimeout   = 5 * time.Second
	requestIDHeader   = "X-Request-ID"
	lastEventIDHeader = "Last-Event-ID"
)

type apiServer struct {
	bind      string
	token     string
	logger    *slog.Logger
	daemon    *Daemon
	media     http.Handler
	keepalive time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Server.APIBind),
		token:     cfg.Server.APIToken,
		logger:    logging.NewComponentLogger(logger, "api-server"),
		daemon:    d,
		keepalive: defaultKeepalive,
	}
	if cfg.Server.ServeMedia {
		if fs, ok := d.store.Backend().(*contentstore.FilesystemBackend); ok {
			srv.media = mediaHandler(fs.Root())
		}
	}
	return srv
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/submissions", authMiddleware(s.token, s.handleSubmit))
	mux.HandleFunc("GET /api/submissions/{id}", authMiddleware(s.token, s.handleSubmission))
	mux.HandleFunc("GET /api/submissions/{id}/events", authMiddleware(s.token, s.handleEvents))
	mux.HandleFunc("GET /api/status", authMiddleware(s.token, s.handleStatus))
	mux.HandleFunc("GET /api/logs", authMiddleware(s.token, s.handleLogs))
	mux.HandleFunc("POST /api/notifications/test", authMiddleware(s.token, s.handleTestNotification))
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.media != nil {
		mux.Handle("GET /media/", http.StripPrefix("/media/", s.media))
	}
	return withRequestID(mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Requests end with the daemon so event streams do not hold up shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
		logging.Bool("media", s.media != nil),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, services.CodeInvalidInput, "invalid request body")
		return
	}
	input := strings.TrimSpace(req.Input)
	switch {
	case input == "":
		s.writeError(w, http.StatusBadRequest, services.CodeInvalidInput, "input is required")
		return
	case len(input) > pipeline.MaxInputBytes:
		s.writeError(w, http.StatusBadRequest, services.CodeInvalidInput,
			fmt.Sprintf("input exceeds %d bytes", pipeline.MaxInputBytes))
		return
	}
	var opts analyzer.Options
	if req.Context != nil {
		opts = *req.Context
	}

	id, stream, err := s.daemon.workflow.Submit(input, opts)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("submission accepted",
		logging.String(logging.FieldEventType, "submission_accepted"),
		logging.String(logging.FieldSubmissionID, id),
	)

	w.Header().Set("Location", api.SubmissionPath(id))
	if wantsEventStream(r) {
		s.streamEvents(w, r, stream, 0)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{
		ID:        id,
		StatusURL: api.SubmissionPath(id),
		EventsURL: api.EventsPath(id),
	})
}

func (s *apiServer) handleSubmission(w http.ResponseWriter, r *http.Request) {
	state, ok := s.daemon.workflow.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "", "submission not found")
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	stream, ok := s.daemon.workflow.Stream(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "", "submission not found")
		return
	}
	since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
	if last, err := strconv.ParseUint(strings.TrimSpace(r.Header.Get(lastEventIDHeader)), 10, 64); err == nil {
		since = max(since, last)
	}
	s.streamEvents(w, r, stream, since)
}

// streamEvents relays every event after since as server-sent events until
// the terminal event has been written or the client goes away.
func (s *apiServer) streamEvents(w http.ResponseWriter, r *http.Request, stream *progress.Stream, since uint64) {
	header := w.Header()
	header.Set("Content-Type", api.EventStreamType)
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	events := stream.Subscribe(r.Context(), since)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := api.WriteEvent(w, evt); err != nil {
				return
			}
			_ = rc.Flush()
		case <-keepalive.C:
			if err := api.WriteComment(w, "keepalive"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	withChecks := truthy(r.URL.Query().Get("checks"))
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context(), withChecks))
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := truthy(query.Get("follow"))
	tail := truthy(query.Get("tail"))
	submissionID := strings.TrimSpace(query.Get("submission"))
	component := strings.TrimSpace(query.Get("component"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		var err error
		events, next, err = hub.Fetch(r.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, services.CodeInternal, err.Error())
			return
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if submissionID != "" && evt.SubmissionID != submissionID {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	resp := api.NotificationTestResponse{Sent: sent, Message: message}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	code := services.Code(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrNotRunning):
		status = http.StatusServiceUnavailable
	case code == services.CodeRateLimit:
		w.Header().Set("Retry-After", rateLimitedRetry)
		status = http.StatusTooManyRequests
	case code == services.CodeInvalidInput:
		status = http.StatusBadRequest
	}
	s.writeError(w, status, code, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, code services.ErrorCode, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), api.EventStreamType)
}

func truthy(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

// mediaHandler serves stored objects from root without directory listings.
func mediaHandler(root string) http.Handler {
	files := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
