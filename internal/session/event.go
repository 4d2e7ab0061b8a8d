package session

// EventType classifies registry mutations.
type EventType int

const (
	EventRegistered EventType = iota // first upsert for a window id
	EventUpdated                     // upsert on a known window id
	EventRemoved                     // explicit removal
	EventSeen                        // unseen flag cleared
)

var eventNames = map[EventType]string{
	EventRegistered: "registered",
	EventUpdated:    "updated",
	EventRemoved:    "removed",
	EventSeen:       "seen",
}

func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "unknown"
}

// Event describes a single applied mutation. WindowID is empty for bulk
// operations such as MarkAllSeen.
type Event struct {
	Type     EventType
	WindowID string
}
