package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pagechat/internal/filters"
	"pagechat/internal/gateway"
	"pagechat/internal/interpreter"
	"pagechat/internal/models"
	"pagechat/internal/providers"
	"pagechat/internal/settings"
)

type fakeLLM struct {
	reply   string
	err     error
	sent    []gateway.Request
	modelID string
}

func (f *fakeLLM) Send(_ context.Context, req gateway.Request) (string, error) {
	f.sent = append(f.sent, req)
	return f.reply, f.err
}

func (f *fakeLLM) Interpret(_ context.Context, _, _ string, vars []models.PromptVariable, modelID string) ([]models.PromptResponse, error) {
	f.modelID = modelID
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.PromptResponse, len(vars))
	for i, v := range vars {
		out[i] = models.PromptResponse{Key: v.Key, Prompt: v.Prompt, UserResponse: "answer to " + v.Prompt}
	}
	return out, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, string, time.Time) (bool, int64, time.Time, error) {
	return false, 1, time.Now().Add(30 * time.Minute), nil
}

func newTestServer(t *testing.T, llm *fakeLLM, limiter Limiter) http.Handler {
	t.Helper()
	mgr, err := settings.NewStatic(settings.Settings{
		InterpreterEnabled: true,
		Providers: []models.Provider{
			{ID: "p1", Name: "OpenAI", BaseURL: "http://127.0.0.1:1", APIKey: "sk", Kind: "openai"},
		},
		Models: []models.ModelConfig{
			{ID: "off", Name: "Off", ProviderID: "p1", ProviderModelID: "x", Enabled: false},
			{ID: "m1", Name: "One", ProviderID: "p1", ProviderModelID: "gpt", Enabled: true},
			{ID: "m2", Name: "Two", ProviderID: "p1", ProviderModelID: "gpt2", Enabled: true},
		},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	s := New(Config{
		Settings: mgr,
		LLM:      llm,
		Filters:  filters.New(zerolog.Nop()),
		Limiter:  limiter,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) },
	})
	return s.Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

const pageURL = "https://example.com/article"

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeLLM{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestModelsAndInterpreterSelection(t *testing.T) {
	h := newTestServer(t, &fakeLLM{}, nil)

	var list modelsResponse
	if code := do(t, h, http.MethodGet, "/v1/settings/models", nil, &list); code != http.StatusOK {
		t.Fatalf("list models: %d", code)
	}
	if len(list.Models) != 2 || list.InterpreterModel != "m1" {
		t.Fatalf("unexpected models %+v", list)
	}

	if code := do(t, h, http.MethodPut, "/v1/settings/interpreter-model", setModelRequest{ModelID: "m2"}, nil); code != http.StatusOK {
		t.Fatalf("set model: %d", code)
	}
	do(t, h, http.MethodGet, "/v1/settings/models", nil, &list)
	if list.InterpreterModel != "m2" {
		t.Fatalf("expected m2 selected, got %q", list.InterpreterModel)
	}

	var errBody map[string]string
	if code := do(t, h, http.MethodPut, "/v1/settings/interpreter-model", setModelRequest{ModelID: "nope"}, &errBody); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %v", code, errBody)
	}
	if code := do(t, h, http.MethodPut, "/v1/settings/interpreter-model", setModelRequest{}, &errBody); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty model, got %d", code)
	}
}

func TestPrepareVariables(t *testing.T) {
	h := newTestServer(t, &fakeLLM{}, nil)
	var prep interpreter.Preparation
	code := do(t, h, http.MethodPost, "/v1/interpreter/variables", prepareRequest{
		Template: &models.Template{NoteContentFormat: `{{"summary"}} and {{"tags"|lower}}`},
	}, &prep)
	if code != http.StatusOK {
		t.Fatalf("prepare: %d", code)
	}
	if !prep.Visible || len(prep.Variables) != 2 || prep.PromptContext != settings.DefaultPromptContext {
		t.Fatalf("unexpected preparation %+v", prep)
	}
}

func TestRunInterpreter(t *testing.T) {
	llm := &fakeLLM{}
	h := newTestServer(t, llm, nil)

	var res interpreter.RunResult
	code := do(t, h, http.MethodPost, "/v1/interpreter/run", runRequest{
		URL:      pageURL,
		Template: &models.Template{NoteContentFormat: `{{"summary"|upper}}`},
		Fields:   []models.Field{{ID: "note-content-field", Value: `Body: {{"summary"|upper}}`}},
		Content:  "page text",
	}, &res)
	if code != http.StatusOK {
		t.Fatalf("run: %d", code)
	}
	if llm.modelID != "m1" {
		t.Fatalf("expected default interpreter model, got %q", llm.modelID)
	}
	if len(res.Fields) != 1 || res.Fields[0].Value != "Body: ANSWER TO SUMMARY" {
		t.Fatalf("unexpected fields %+v", res.Fields)
	}

	var st interpreter.State
	do(t, h, http.MethodGet, "/v1/interpreter/state?url="+pageURL, nil, &st)
	if st.Status != interpreter.StatusDone {
		t.Fatalf("expected done state, got %+v", st)
	}
}

func TestRunInterpreterWithoutVariables(t *testing.T) {
	h := newTestServer(t, &fakeLLM{}, nil)
	var body map[string]string
	code := do(t, h, http.MethodPost, "/v1/interpreter/run", runRequest{
		URL:      pageURL,
		Template: &models.Template{NoteContentFormat: "plain"},
	}, &body)
	if code != http.StatusUnprocessableEntity || body["error"] != interpreter.ErrNoPromptVariables.Error() {
		t.Fatalf("unexpected response %d %v", code, body)
	}
}

func TestChatFlow(t *testing.T) {
	llm := &fakeLLM{reply: "It is about Go."}
	h := newTestServer(t, llm, nil)

	var view chatResponse
	code := do(t, h, http.MethodPost, "/v1/chats/context", contextRequest{
		URL:         pageURL,
		PageContent: "Go is a language.",
		Highlights:  []string{"language"},
	}, &view)
	if code != http.StatusOK {
		t.Fatalf("context: %d", code)
	}
	if len(view.Messages) != 0 {
		t.Fatalf("context messages must be hidden, got %+v", view.Messages)
	}

	code = do(t, h, http.MethodPost, "/v1/chats/messages", messageRequest{URL: pageURL, ModelID: "m1", Message: "What is this?"}, &view)
	if code != http.StatusOK {
		t.Fatalf("send: %d", code)
	}
	if len(view.Messages) != 2 || view.Messages[1].Content != "It is about Go." {
		t.Fatalf("unexpected transcript %+v", view.Messages)
	}
	if len(llm.sent) != 1 || !strings.Contains(llm.sent[0].Context, "HIGHLIGHTED EXCERPTS:") || llm.sent[0].Content != "User: What is this?" {
		t.Fatalf("unexpected gateway request %+v", llm.sent)
	}
	if len(view.Sessions) != 1 || view.Sessions[0].Title != "What is this?" || !view.Sessions[0].Active {
		t.Fatalf("unexpected sessions %+v", view.Sessions)
	}
	first := view.SessionID

	code = do(t, h, http.MethodPost, "/v1/chats/new", urlRequest{URL: pageURL}, &view)
	if code != http.StatusOK || len(view.Sessions) != 2 || len(view.Messages) != 0 || view.SessionID == first {
		t.Fatalf("unexpected new chat %d %+v", code, view)
	}
	second := view.SessionID

	code = do(t, h, http.MethodPut, "/v1/chats/active", switchRequest{URL: pageURL, SessionID: first}, &view)
	if code != http.StatusOK || view.SessionID != first || len(view.Messages) != 2 {
		t.Fatalf("unexpected switch %d %+v", code, view)
	}

	code = do(t, h, http.MethodDelete, "/v1/chats/"+first+"?url="+pageURL, nil, &view)
	if code != http.StatusOK || len(view.Sessions) != 1 || view.SessionID != second {
		t.Fatalf("unexpected delete %d %+v", code, view)
	}

	var body map[string]string
	if code := do(t, h, http.MethodDelete, "/v1/chats/missing?url="+pageURL, nil, &body); code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing session, got %d", code)
	}
}

func TestSendFailureKeepsError(t *testing.T) {
	llm := &fakeLLM{err: &providers.HTTPError{Provider: "OpenAI", StatusCode: http.StatusTooManyRequests, Status: "Too Many Requests"}}
	h := newTestServer(t, llm, nil)

	var body map[string]string
	code := do(t, h, http.MethodPost, "/v1/chats/messages", messageRequest{URL: pageURL, ModelID: "m1", Message: "hi"}, &body)
	if code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d %v", code, body)
	}

	var view chatResponse
	do(t, h, http.MethodGet, "/v1/chats?url="+pageURL, nil, &view)
	if view.Error == "" || len(view.Messages) != 2 || view.Messages[1].Role != "error" {
		t.Fatalf("expected error entry in transcript, got %+v", view)
	}
}

func TestRequestValidation(t *testing.T) {
	h := newTestServer(t, &fakeLLM{}, nil)
	var body map[string]string

	if code := do(t, h, http.MethodPost, "/v1/chats/messages", messageRequest{URL: pageURL, ModelID: "m1", Message: "  "}, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", code)
	}
	if code := do(t, h, http.MethodGet, "/v1/chats", nil, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without url, got %d", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/chats/new", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestRateLimited(t *testing.T) {
	llm := &fakeLLM{reply: "x"}
	h := newTestServer(t, llm, denyAll{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chats/messages", strings.NewReader(`{"url":"`+pageURL+`","modelId":"m1","message":"hi"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", rec.Code, rec.Header())
	}
	if len(llm.sent) != 0 {
		t.Fatal("limited request must not reach the gateway")
	}

	var list modelsResponse
	if code := do(t, h, http.MethodGet, "/v1/settings/models", nil, &list); code != http.StatusOK {
		t.Fatalf("settings must not be limited, got %d", code)
	}
}

func TestNoteURI(t *testing.T) {
	h := newTestServer(t, &fakeLLM{}, nil)

	var note noteResponse
	code := do(t, h, http.MethodPost, "/v1/notes/uri", noteRequest{
		Name:       "Go: a tour",
		Content:    "body",
		Properties: []models.Property{{Name: "title", Value: "Tour"}},
		Path:       "Clips",
		Vault:      "Main",
	}, &note)
	if code != http.StatusOK {
		t.Fatalf("note uri: %d", code)
	}
	if note.Name != "Go a tour" {
		t.Fatalf("unexpected name %q", note.Name)
	}
	if !strings.HasPrefix(note.URI, "obsidian://new?file=Clips%2FGo%20a%20tour&content=---") || !strings.HasSuffix(note.URI, "&vault=Main") {
		t.Fatalf("unexpected uri %q", note.URI)
	}

	code = do(t, h, http.MethodPost, "/v1/notes/uri", noteRequest{
		Content:         "more",
		Properties:      []models.Property{{Name: "title", Value: "Tour"}},
		Behavior:        "append-daily",
		DailyNoteFormat: "YYYY-MM-DD",
	}, &note)
	if code != http.StatusOK {
		t.Fatalf("append uri: %d", code)
	}
	if note.URI != "obsidian://new?file=2026-03-01&append=true&content=%0A%0Amore" {
		t.Fatalf("unexpected append uri %q", note.URI)
	}

	var body map[string]string
	if code := do(t, h, http.MethodPost, "/v1/notes/uri", noteRequest{Content: "x"}, &body); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without name, got %d", code)
	}
	if code := do(t, h, http.MethodPost, "/v1/notes/uri", noteRequest{Name: "n", Behavior: "bogus"}, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad behavior, got %d", code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{settings.ErrModelNotFound, http.StatusNotFound},
		{gateway.ErrMissingAPIKey, http.StatusUnprocessableEntity},
		{interpreter.ErrNoPromptVariables, http.StatusUnprocessableEntity},
		{interpreter.ErrAlreadyRunning, http.StatusConflict},
		{settings.ErrNoEnabledModels, http.StatusConflict},
		{&providers.HTTPError{Provider: "OpenAI", StatusCode: 500}, http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
