package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/termfocus/termfocus/internal/logging"
	"github.com/termfocus/termfocus/internal/session"
)

// maxEventBody caps the size of an ingestion request body.
const maxEventBody = 64 << 10

var ingestLog = logging.ForComponent(logging.CompIngest)

// WindowID accepts either a JSON string or a JSON number, since shell
// callers often send the AppleScript id unquoted.
type WindowID string

func (w *WindowID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*w = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = WindowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return &fieldError{field: "window_id", msg: "window_id must be a string or number"}
	}
	*w = WindowID(n.String())
	return nil
}

// EventRequest is the body of an ingestion call.
type EventRequest struct {
	WindowID WindowID `json:"window_id"`
	Title    string   `json:"event_title"`
	Message  string   `json:"event_msg"`
}

// fieldError is a validation failure reported to the caller verbatim.
type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string { return e.msg }

func (e *fieldError) Unwrap() error { return session.ErrInvalidInput }

// DecodeEventRequest parses and validates a request body. validateID applies
// backend-specific id rules and may be nil. Every returned error wraps
// session.ErrInvalidInput.
func DecodeEventRequest(body io.Reader, validateID func(string) error) (EventRequest, error) {
	var req EventRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		var fe *fieldError
		var te *json.UnmarshalTypeError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return req, fmt.Errorf("%w: %w", session.ErrInvalidInput, err)
		case errors.As(err, &fe):
			return req, fe
		case errors.As(err, &te) && te.Field != "":
			return req, &fieldError{field: te.Field, msg: te.Field + " must be a " + te.Type.String()}
		default:
			return req, &fieldError{msg: "invalid JSON body"}
		}
	}
	// The body holds exactly one object.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, fmt.Errorf("%w: %w", session.ErrInvalidInput, err)
		}
		return req, &fieldError{msg: "invalid JSON body"}
	}

	req.WindowID = WindowID(strings.TrimSpace(string(req.WindowID)))
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)

	if req.WindowID == "" {
		return req, &fieldError{field: "window_id", msg: "window_id is required"}
	}
	if req.Title == "" {
		return req, &fieldError{field: "event_title", msg: "event_title is required"}
	}
	if validateID != nil {
		if err := validateID(string(req.WindowID)); err != nil {
			return req, &fieldError{field: "window_id", msg: idErrorText(err)}
		}
	}
	return req, nil
}

// idErrorText strips sentinel prefixes so the caller sees the rule that
// failed, e.g. "window_id must be numeric".
func idErrorText(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if !strings.Contains(msg, "window_id") {
		msg = "invalid window_id: " + msg
	}
	return msg
}

// Apply dispatches a validated request to the store and returns the
// confirmation text.
func (req EventRequest) Apply(store *session.Store) (string, error) {
	id := string(req.WindowID)
	if session.IsTerminate(req.Title) {
		store.Remove(id)
		return "removed " + id, nil
	}
	if _, err := store.Upsert(id, req.Title, req.Message); err != nil {
		return "", err
	}
	return "registered " + id, nil
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		writeText(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxEventBody)
	req, err := DecodeEventRequest(r.Body, s.validateID)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		ingestLog.Debug("event_rejected", slog.String("error", err.Error()), slog.String("remote", r.RemoteAddr))
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := req.Apply(s.store)
	if err != nil {
		// Validation already rejected empty ids.
		ingestLog.Error("event_apply_failed", slog.String("window_id", string(req.WindowID)), slog.String("error", err.Error()))
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	ingestLog.Debug("event_applied",
		slog.String("window_id", string(req.WindowID)),
		slog.String("title", req.Title),
		slog.String("result", msg))
	writeText(w, http.StatusOK, msg)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	fmt.Fprintln(w, msg)
}
