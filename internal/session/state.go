package session

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidInput is returned when a mutation is attempted with an empty
// window id.
var ErrInvalidInput = errors.New("invalid input")

// TerminateTitle is the reserved event title that removes a session instead
// of updating it. Matching is case-insensitive.
const TerminateTitle = "terminate"

// IsTerminate reports whether an event title requests removal.
func IsTerminate(title string) bool {
	return strings.EqualFold(strings.TrimSpace(title), TerminateTitle)
}

// Session is the registry record for one tracked terminal window.
type Session struct {
	WindowID     string    `json:"window_id"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Unseen       bool      `json:"unseen"`
	UpdatedAt    time.Time `json:"updated_at"`
	RegisteredAt time.Time `json:"registered_at"`
	Order        int       `json:"order"` // registration sequence, used for snapshot ordering
}

// Label renders the session the way the menu shows it: title, then the
// message when there is one.
func (s Session) Label() string {
	if s.Message == "" {
		return s.Title
	}
	return s.Title + " — " + s.Message
}

// RenderModel is the read-only view handed to presenters. BadgeCount is
// always the number of Entries with Unseen set.
type RenderModel struct {
	BadgeCount int       `json:"badge_count"`
	Total      int       `json:"total"`
	Entries    []Session `json:"entries"`
}

// HasUnseen reports whether any entry needs attention.
func (m RenderModel) HasUnseen() bool {
	return m.BadgeCount > 0
}
