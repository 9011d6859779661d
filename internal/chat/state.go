package chat

import (
	"slices"
	"sync"

	"pagechat/internal/models"
)

// State is the in-memory chat for one page: the active session's transcript
// plus processing flags.
type State struct {
	SessionID    string               `json:"sessionId"`
	Messages     []models.ChatMessage `json:"messages"`
	IsProcessing bool                 `json:"isProcessing"`
	Error        string               `json:"error,omitempty"`
}

func (s State) clone() State {
	s.Messages = slices.Clone(s.Messages)
	return s
}

// Conversation owns a State. Update is the only way to change it; listeners
// run after the lock is released, in registration order.
type Conversation struct {
	url string

	mu        sync.Mutex
	state     State
	listeners []func(State)
}

func NewConversation(url, sessionID string) *Conversation {
	return &Conversation{url: url, state: State{SessionID: sessionID}}
}

func (c *Conversation) URL() string { return c.url }

func (c *Conversation) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Conversation) Update(fn func(*State)) State {
	c.mu.Lock()
	fn(&c.state)
	snap := c.state.clone()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return snap
}

func (c *Conversation) OnChange(fn func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}
