package ws

import (
	"github.com/termfocus/termfocus/internal/focus"
	"github.com/termfocus/termfocus/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgNotice   MessageType = "notice"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is the full render model: badge count plus entries.
type SnapshotPayload = session.RenderModel

type NoticePayload = focus.Notice
