package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"pagechat/internal/models"
)

const untitledChat = "New Chat"

var ErrSessionNotFound = errors.New("chat session not found")

// NewSessionID returns the decimal millisecond time followed by nine random
// base36 characters.
func NewSessionID(now time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 9)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + string(b)
}

type SessionSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	Messages  int    `json:"messages"`
	Active    bool   `json:"active"`
}

type StoreConfig struct {
	Records      RecordStore
	Conversation *Conversation
	Logger       zerolog.Logger
	Now          func() time.Time
	// OnChange runs after a delete so views can refresh.
	OnChange func(models.StoredChatData)
}

// SessionStore syncs a Conversation with the persisted record of its URL.
type SessionStore struct {
	records  RecordStore
	conv     *Conversation
	logger   zerolog.Logger
	now      func() time.Time
	onChange func(models.StoredChatData)
}

func NewSessionStore(cfg StoreConfig) *SessionStore {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		records:  cfg.Records,
		conv:     cfg.Conversation,
		logger:   cfg.Logger,
		now:      now,
		onChange: cfg.OnChange,
	}
}

func (s *SessionStore) Record(ctx context.Context) (models.StoredChatData, error) {
	url := s.conv.URL()
	d, ok, err := s.records.Get(ctx, url)
	if err != nil {
		return models.StoredChatData{}, fmt.Errorf("get chat record: %w", err)
	}
	if !ok {
		d = models.StoredChatData{URL: url}
	}
	return d, nil
}

func (s *SessionStore) put(ctx context.Context, d models.StoredChatData) error {
	if err := s.records.Put(ctx, d); err != nil {
		return fmt.Errorf("put chat record: %w", err)
	}
	return nil
}

// Save upserts the in-memory session and marks it active. An existing entry
// keeps its position and creation time.
func (s *SessionStore) Save(ctx context.Context) error {
	d, err := s.Record(ctx)
	if err != nil {
		return err
	}
	st := s.conv.Snapshot()
	if st.Messages == nil {
		st.Messages = []models.ChatMessage{}
	}

	replaced := false
	for i := range d.Sessions {
		if d.Sessions[i].ID == st.SessionID {
			d.Sessions[i].Messages = st.Messages
			replaced = true
			break
		}
	}
	if !replaced {
		d.Sessions = append(d.Sessions, models.ChatSession{
			ID:        st.SessionID,
			URL:       d.URL,
			Messages:  st.Messages,
			CreatedAt: s.now().UnixMilli(),
		})
	}
	d.ActiveSessionID = st.SessionID
	return s.put(ctx, d)
}

// Load replaces the in-memory transcript with the active stored session, if
// there is one.
func (s *SessionStore) Load(ctx context.Context) error {
	d, err := s.Record(ctx)
	if err != nil {
		return err
	}
	if d.ActiveSessionID == "" {
		return nil
	}
	sess, ok := d.Session(d.ActiveSessionID)
	if !ok {
		s.logger.Warn().Str("url", d.URL).Str("session", d.ActiveSessionID).Msg("active chat session missing from record")
		return nil
	}
	s.activate(sess)
	return nil
}

func (s *SessionStore) activate(sess models.ChatSession) {
	s.conv.Update(func(st *State) {
		st.SessionID = sess.ID
		st.Messages = sess.Messages
		st.Error = ""
	})
}

// CreateNew saves the current session, then starts and stores an empty one.
func (s *SessionStore) CreateNew(ctx context.Context) (models.ChatSession, error) {
	if err := s.Save(ctx); err != nil {
		return models.ChatSession{}, err
	}
	now := s.now()
	sess := models.ChatSession{
		ID:        NewSessionID(now),
		URL:       s.conv.URL(),
		Messages:  []models.ChatMessage{},
		CreatedAt: now.UnixMilli(),
	}
	s.conv.Update(func(st *State) {
		*st = State{SessionID: sess.ID, Messages: nil}
	})

	d, err := s.Record(ctx)
	if err != nil {
		return models.ChatSession{}, err
	}
	d.Sessions = append(d.Sessions, sess)
	d.ActiveSessionID = sess.ID
	if err := s.put(ctx, d); err != nil {
		return models.ChatSession{}, err
	}
	return sess, nil
}

// Delete removes a stored session. Deleting the active one activates the last
// remaining session, or none.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	d, err := s.Record(ctx)
	if err != nil {
		return err
	}
	idx := -1
	for i, sess := range d.Sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	d.Sessions = append(d.Sessions[:idx], d.Sessions[idx+1:]...)

	if d.ActiveSessionID == id {
		d.ActiveSessionID = ""
		if n := len(d.Sessions); n > 0 {
			d.ActiveSessionID = d.Sessions[n-1].ID
		}
	}
	if err := s.put(ctx, d); err != nil {
		return err
	}

	if s.conv.Snapshot().SessionID == id {
		if next, ok := d.Session(d.ActiveSessionID); ok {
			s.activate(next)
		} else {
			fresh := NewSessionID(s.now())
			s.conv.Update(func(st *State) {
				*st = State{SessionID: fresh}
			})
		}
	}

	if s.onChange != nil {
		s.onChange(d)
	}
	return nil
}

// Switch makes a stored session active and loads it.
func (s *SessionStore) Switch(ctx context.Context, id string) error {
	d, err := s.Record(ctx)
	if err != nil {
		return err
	}
	sess, ok := d.Session(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	d.ActiveSessionID = id
	if err := s.put(ctx, d); err != nil {
		return err
	}
	s.activate(sess)
	return nil
}

func (s *SessionStore) Sessions(ctx context.Context) ([]SessionSummary, error) {
	d, err := s.Record(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(d.Sessions))
	for _, sess := range d.Sessions {
		title := untitledChat
		for _, m := range sess.Messages {
			if !m.IsContext && m.Content != "" {
				title = m.Content
				break
			}
		}
		out = append(out, SessionSummary{
			ID:        sess.ID,
			Title:     title,
			CreatedAt: sess.CreatedAt,
			Messages:  len(sess.Messages),
			Active:    sess.ID == d.ActiveSessionID,
		})
	}
	return out, nil
}
