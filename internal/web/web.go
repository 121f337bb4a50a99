package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"classfinder/internal/config"
	"classfinder/internal/gviz"
	"classfinder/internal/ics"
	appLog "classfinder/internal/log"
	"classfinder/internal/metrics"
	"classfinder/internal/model"
	"classfinder/internal/schedule"
)

const (
	headerRequestID  = "X-Request-ID"
	headerInvalidate = "X-Invalidate-Secret"

	// retryAfterSeconds is advertised when a day is still loading.
	retryAfterSeconds = "5"
)

// Server provides the JSON API and the embedded browser UI.
type Server struct {
	cfg     *config.Config
	svc     *schedule.Service
	metrics *metrics.Metrics
	router  *mux.Router
}

// embeddedStatic contains the browser UI served at "/".
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server. m may be nil, which disables /metrics.
func NewServer(cfg *config.Config, svc *schedule.Service, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		metrics: m,
		router:  mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = accessLog(h)
	h = requestID(h)
	h = handlers.CompressHandler(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(false),
	)(h)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", headerInvalidate}),
		handlers.ExposedHeaders([]string{headerRequestID}),
	)(h)
	return h
}

func (s *Server) registerRoutes() {
	s.handle("/health", s.handleHealth, http.MethodGet)
	s.handle("/api/schedule", s.handleSchedule, http.MethodGet)
	s.handle("/api/search", s.handleSearch, http.MethodGet)
	s.handle("/api/free-rooms", s.handleFreeRooms, http.MethodGet)
	s.handle("/api/free-ranges", s.handleFreeRanges, http.MethodGet)
	s.handle("/api/export.ics", s.handleExport, http.MethodGet)
	s.handle("/api/cache/invalidate", s.handleInvalidate, http.MethodPost)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Everything else, except /api/*, is the embedded UI.
	s.router.PathPrefix("/").MatcherFunc(isUIPath).Handler(s.staticFileServer())
}

func isUIPath(r *http.Request, _ *mux.RouteMatch) bool {
	p := r.URL.Path
	return p != "/api" && !strings.HasPrefix(p, "/api/")
}

func (s *Server) handle(path string, fn http.HandlerFunc, methods ...string) {
	s.router.Handle(path, s.metrics.WrapHandler(path, fn)).Methods(methods...)
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// envelope is the shape of every JSON response.
type envelope struct {
	Success bool              `json:"success"`
	Cached  bool              `json:"cached,omitempty"`
	Stale   bool              `json:"stale,omitempty"`
	Error   string            `json:"error,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// handleSchedule serves one day (the cached payload as is) or, for
// day=all, the week mapping.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sel, err := s.svc.Selector(r.URL.Query().Get("day"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if sel.All {
		week, err := s.svc.Week(ctx)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{
			Success: true,
			Cached:  week.Cached,
			Stale:   week.Stale,
			Data:    week.Days,
			Errors:  week.Errors,
		})
		return
	}

	res, err := s.svc.Day(ctx, sel.Day)
	if err != nil && !res.Stale {
		writeServiceError(w, err)
		return
	}
	env := envelope{Success: true, Cached: res.Cached, Stale: res.Stale, Data: res.Payload}
	if err != nil {
		env.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.svc.Search(r.Context(), q.Get("q"), dayOrAll(q.Get("day")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Cached: res.Cached, Stale: res.Stale, Data: res})
}

func (s *Server) handleFreeRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := s.singleDay(q.Get("day"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rooms, err := s.svc.FreeRooms(r.Context(), day, q.Get("start"), q.Get("end"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{"rooms": rooms}})
}

func (s *Server) handleFreeRanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := s.singleDay(q.Get("day"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ranges, err := s.svc.FreeRanges(r.Context(), day, q.Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{"ranges": ranges}})
}

// handleExport serves the search results for q as an iCalendar file of
// weekly recurring events.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.svc.Search(r.Context(), q.Get("q"), dayOrAll(q.Get("day")))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var items []model.SearchResultItem
	for _, d := range model.Weekdays {
		items = append(items, res.Results[d.String()]...)
	}
	cal := ics.Export(items, ics.ExportConfig{
		From:     s.svc.Now(),
		Location: s.cfg.Location(),
		Weeks:    s.cfg.ExportWeeks,
		Name:     strings.TrimSpace(q.Get("q")),
	})

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="classfinder.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cal.Serialize()))
}

// handleInvalidate clears the cache. It is disabled when no secret is
// configured.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	secret := s.cfg.InvalidateSecret
	if secret == "" {
		writeError(w, http.StatusForbidden, "cache invalidation is disabled")
		return
	}
	if !secureCompare(r.Header.Get(headerInvalidate), secret) {
		writeError(w, http.StatusUnauthorized, "invalid secret")
		return
	}
	if err := s.svc.Invalidate(r.Context()); err != nil {
		appLog.Error("cache invalidation failed", err)
		writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) singleDay(raw string) (model.Weekday, error) {
	sel, err := s.svc.Selector(raw)
	if err != nil {
		return 0, err
	}
	if sel.All {
		return 0, fmt.Errorf("%w: a single day is required", schedule.ErrInvalidDaySelector)
	}
	return sel.Day, nil
}

func dayOrAll(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "all"
	}
	return raw
}

// statusFor maps service and upstream errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, schedule.ErrInvalidDaySelector), errors.Is(err, schedule.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrDataNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, gviz.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		// NotPublished, AccessDenied, other upstream HTTP and malformed
		// responses.
		return http.StatusBadGateway
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// staticFileServer serves the embedded UI. Unknown API paths never reach
// it, so they get a JSON 404 rather than HTML.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	return http.FileServer(http.FS(sub))
}

type ctxKey struct{}

// RequestID returns the request ID stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// requestID propagates an incoming X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		appLog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", RequestID(r.Context()),
		)
	})
}

// recoveryLogger routes panics caught by handlers.RecoveryHandler to the
// application log.
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	appLog.Error("panic in HTTP handler", errors.New(fmt.Sprint(v...)))
}
