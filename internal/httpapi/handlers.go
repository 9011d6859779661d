package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pagechat/internal/chat"
	"pagechat/internal/interpreter"
	"pagechat/internal/models"
	"pagechat/internal/obsidian"
)

type modelsResponse struct {
	Models           []models.ModelConfig `json:"models"`
	InterpreterModel string               `json:"interpreterModel"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	resp := modelsResponse{Models: s.settings.EnabledModels()}
	if mc, err := s.settings.SelectInterpreterModel(); err == nil {
		resp.InterpreterModel = mc.ID
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetInterpreterModel(w http.ResponseWriter, r *http.Request) {
	var req setModelRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.settings.SetInterpreterModel(req.ModelID); err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"interpreterModel": req.ModelID})
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if !decode(w, r, &req) {
		return
	}
	respondWithJSON(w, http.StatusOK, interpreter.Prepare(s.settings.Snapshot(), req.Template, req.Fields))
}

func (s *Server) handleInterpreterState(w http.ResponseWriter, r *http.Request) {
	pg, ok := s.pageFromQuery(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, pg.runner.State())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decode(w, r, &req) {
		return
	}
	modelID, err := s.defaultModel(req.ModelID)
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	pg, err := s.pages.get(r.Context(), req.URL)
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	promptContext := req.PromptContext
	if promptContext == "" {
		promptContext = interpreter.Prepare(s.settings.Snapshot(), req.Template, req.Fields).PromptContext
	}
	res, err := pg.runner.Run(r.Context(), interpreter.RunInput{
		Template:      req.Template,
		Fields:        req.Fields,
		PromptContext: promptContext,
		Content:       req.Content,
		ModelID:       modelID,
	})
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

type chatResponse struct {
	SessionID    string                `json:"sessionId"`
	Messages     []models.ChatMessage  `json:"messages"`
	IsProcessing bool                  `json:"isProcessing"`
	Error        string                `json:"error,omitempty"`
	Sessions     []chat.SessionSummary `json:"sessions"`
}

func (s *Server) chatView(r *http.Request, pg *page) (chatResponse, error) {
	sessions, err := pg.orch.Store().Sessions(r.Context())
	if err != nil {
		return chatResponse{}, err
	}
	st := pg.orch.Conversation().Snapshot()
	return chatResponse{
		SessionID:    st.SessionID,
		Messages:     pg.orch.Transcript(),
		IsProcessing: st.IsProcessing,
		Error:        st.Error,
		Sessions:     sessions,
	}, nil
}

func (s *Server) respondWithChat(w http.ResponseWriter, r *http.Request, pg *page) {
	view, err := s.chatView(r, pg)
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (s *Server) pageFromQuery(w http.ResponseWriter, r *http.Request) (*page, bool) {
	q := urlRequest{URL: r.URL.Query().Get("url")}
	if err := q.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	pg, err := s.pages.get(r.Context(), q.URL)
	if err != nil {
		s.respondWithErr(w, r, err)
		return nil, false
	}
	return pg, true
}

func (s *Server) handleGetChats(w http.ResponseWriter, r *http.Request) {
	pg, ok := s.pageFromQuery(w, r)
	if !ok {
		return
	}
	pg.mu.Lock()
	defer pg.mu.Unlock()
	s.respondWithChat(w, r, pg)
}

func (s *Server) handleChatContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if !decode(w, r, &req) {
		return
	}
	pg, err := s.pages.get(r.Context(), req.URL)
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	pg.mu.Lock()
	defer pg.mu.Unlock()

	pg.orch.InitializeContext(req.PageContent)
	if err := pg.orch.UpdateContextWithHighlights(r.Context(), req.Highlights); err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	s.respondWithChat(w, r, pg)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	pg, err := s.pages.get(r.Context(), req.URL)
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if _, err := pg.orch.Send(r.Context(), req.ModelID, req.Message); err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	s.respondWithChat(w, r, pg)
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !decode(w, r, &req) {
		return
	}
	pg, err := s.pages.get(r.Context(), req.URL)
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if _, err := pg.orch.Store().CreateNew(r.Context()); err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	s.respondWithChat(w, r, pg)
}

func (s *Server) handleSwitchChat(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !decode(w, r, &req) {
		return
	}
	pg, err := s.pages.get(r.Context(), req.URL)
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if err := pg.orch.Store().Switch(r.Context(), req.SessionID); err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	s.respondWithChat(w, r, pg)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	pg, ok := s.pageFromQuery(w, r)
	if !ok {
		return
	}
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if err := pg.orch.Store().Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	s.respondWithChat(w, r, pg)
}

type noteResponse struct {
	Name        string `json:"name"`
	Frontmatter string `json:"frontmatter"`
	URI         string `json:"uri"`
}

func (s *Server) handleNoteURI(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !decode(w, r, &req) {
		return
	}
	fm, err := obsidian.Frontmatter(req.Properties)
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	// Appended content never carries properties.
	content := req.Content
	if len(req.Properties) > 0 && (req.Behavior == "" || req.Behavior == obsidian.BehaviorCreate) {
		content = fm + content
	}
	name := obsidian.SanitizeFileName(req.Name, false)
	uri, err := obsidian.NoteURI(obsidian.Note{
		Name:             name,
		Content:          content,
		Path:             req.Path,
		Vault:            req.Vault,
		Behavior:         req.Behavior,
		SpecificNoteName: req.SpecificNoteName,
		DailyNoteFormat:  req.DailyNoteFormat,
	}, s.now())
	if err != nil {
		s.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, noteResponse{Name: name, Frontmatter: fm, URI: uri})
}
