package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/termfocus/termfocus/internal/focus"
	"github.com/termfocus/termfocus/internal/logging"
	"github.com/termfocus/termfocus/internal/session"
)

// ErrListen marks a failure to bind the server socket.
var ErrListen = errors.New("cannot listen")

var httpLog = logging.ForComponent(logging.CompHTTP)

// Options configures a Server.
type Options struct {
	// ValidateID applies backend-specific window id rules to ingestion
	// requests. Nil accepts any non-empty id.
	ValidateID func(string) error
	// RateLimit is requests per second accepted by the ingestion endpoint;
	// zero disables limiting.
	RateLimit float64
	RateBurst int
}

type Server struct {
	store       *session.Store
	broadcaster *Broadcaster
	focus       *focus.Service
	validateID  func(string) error
	limiter     *rate.Limiter
}

func NewServer(store *session.Store, broadcaster *Broadcaster, focusSvc *focus.Service, opts Options) *Server {
	s := &Server{
		store:       store,
		broadcaster: broadcaster,
		focus:       focusSvc,
		validateID:  opts.ValidateID,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = int(opts.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/event", s.handleEvent)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/api/seen", s.handleSeenAll)
	mux.HandleFunc("/ws", s.handleWS)
}

// Handler returns the routed handler wrapped with panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return withRecover(securityHeaders(mux))
}

// handleRoot accepts events posted to "/" for callers that post to the bare
// address.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	s.handleEvent(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.store.RenderModel())
}

func (s *Server) handleSeenAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": s.store.MarkAllSeen()})
}

func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	// Parse: /api/sessions/{id}/{focus|seen}. The escaped path is used so
	// ids containing '%' or '/' survive.
	path := strings.TrimPrefix(r.URL.EscapedPath(), "/api/sessions/")
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	action := path[i+1:]
	windowID, err := url.PathUnescape(path[:i])
	if err != nil || windowID == "" {
		writeText(w, http.StatusBadRequest, "invalid window id")
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch action {
	case "focus":
		s.handleFocus(w, r, windowID)
	case "seen":
		if !s.store.MarkSeen(windowID) {
			writeText(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeText(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request, windowID string) {
	if s.focus == nil {
		writeText(w, http.StatusServiceUnavailable, "activation not available")
		return
	}

	err := s.focus.Select(r.Context(), windowID)
	var aerr *focus.ActivationError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, focus.ErrNotFound):
		writeText(w, http.StatusNotFound, "session not found")
	case errors.As(err, &aerr) && aerr.TimedOut:
		writeText(w, http.StatusGatewayTimeout, aerr.Error())
	default:
		writeText(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		writeText(w, http.StatusServiceUnavailable, "push not available")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.Warn("ws_upgrade_failed", slog.String("error", err.Error()))
		return
	}

	wsLog.Info("ws_client_connected", slog.String("remote", r.RemoteAddr))
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			wsLog.Info("ws_client_disconnected", slog.String("remote", r.RemoteAddr))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// checkOrigin admits non-browser clients and pages served from loopback.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				writeText(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Listen binds addr. Bind failures wrap ErrListen.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w on %s: %w", ErrListen, addr, err)
	}
	return ln, nil
}

// Serve runs handler on ln until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		httpLog.Info("server_listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Long-lived websocket connections can hold up graceful shutdown.
		if closeErr := srv.Close(); closeErr != nil {
			return fmt.Errorf("shutdown: %w", closeErr)
		}
	}
	return nil
}
