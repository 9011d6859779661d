package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage timestamps are Unix milliseconds. Context messages are sent to
// the LLM but never rendered.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	IsContext bool   `json:"isContext"`
	Error     string `json:"error,omitempty"`
}

type ChatSession struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt int64         `json:"createdAt"`
}

// StoredChatData is the single persisted record for a page URL.
type StoredChatData struct {
	URL             string        `json:"url"`
	Sessions        []ChatSession `json:"sessions"`
	ActiveSessionID string        `json:"activeSessionId"`
}

// Session returns the stored session with the given id.
func (d *StoredChatData) Session(id string) (ChatSession, bool) {
	for _, s := range d.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return ChatSession{}, false
}
