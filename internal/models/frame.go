package models

type FrameType string

const (
	FrameTypeJoin        FrameType = "join"
	FrameTypeLeave       FrameType = "leave"
	FrameTypeChat        FrameType = "chat"
	FrameTypeTyping      FrameType = "typing"
	FrameTypeHistory     FrameType = "history"
	FrameTypeOnlineCount FrameType = "online_count"
)

// Frame is the inbound client event. Which fields are meaningful depends on Type.
type Frame struct {
	Type      FrameType `json:"type"`
	RoomID    string    `json:"roomId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Nickname  string    `json:"nickname,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// HistoryFrame is unicast to a connection right after it joins a room.
// Messages are in chronological order.
type HistoryFrame struct {
	Type     FrameType  `json:"type"`
	Messages []*Message `json:"messages"`
}

// OnlineCountFrame carries the unique-user count for the room. Count is not
// omitempty: a count of zero is a valid broadcast.
type OnlineCountFrame struct {
	Type  FrameType `json:"type"`
	Count int       `json:"count"`
}

// PresenceFrame announces a join or leave to the room.
type PresenceFrame struct {
	Type      FrameType `json:"type"`
	UserID    string    `json:"userId"`
	Nickname  string    `json:"nickname"`
	Timestamp string    `json:"timestamp"`
}

type ChatFrame struct {
	Type      FrameType `json:"type"`
	UserID    string    `json:"userId"`
	Nickname  string    `json:"nickname"`
	Content   string    `json:"content"`
	Timestamp string    `json:"timestamp"`
	RiskLevel string    `json:"riskLevel"`
}

type TypingFrame struct {
	Type     FrameType `json:"type"`
	UserID   string    `json:"userId"`
	Nickname string    `json:"nickname"`
}
