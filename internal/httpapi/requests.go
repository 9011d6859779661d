package httpapi

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"pagechat/internal/models"
	"pagechat/internal/obsidian"
)

type setModelRequest struct {
	ModelID string `json:"modelId"`
}

func (r setModelRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ModelID, validation.Required),
	)
}

type prepareRequest struct {
	Template *models.Template `json:"template"`
	Fields   []models.Field   `json:"fields"`
}

func (r prepareRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Template, validation.NotNil),
	)
}

type runRequest struct {
	URL           string           `json:"url"`
	Template      *models.Template `json:"template"`
	Fields        []models.Field   `json:"fields"`
	PromptContext string           `json:"promptContext"`
	Content       string           `json:"content"`
	ModelID       string           `json:"modelId"`
}

func (r runRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.URL),
		validation.Field(&r.Template, validation.NotNil),
	)
}

type contextRequest struct {
	URL         string   `json:"url"`
	PageContent string   `json:"pageContent"`
	Highlights  []string `json:"highlights"`
}

func (r contextRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.URL),
	)
}

type messageRequest struct {
	URL     string `json:"url"`
	ModelID string `json:"modelId"`
	Message string `json:"message"`
}

func (r messageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.URL),
		validation.Field(&r.ModelID, validation.Required),
		validation.Field(&r.Message, validation.Required, validation.By(notBlank)),
	)
}

type urlRequest struct {
	URL string `json:"url"`
}

func (r urlRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.URL),
	)
}

type switchRequest struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

func (r switchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.URL),
		validation.Field(&r.SessionID, validation.Required),
	)
}

type noteRequest struct {
	Name             string            `json:"name"`
	Content          string            `json:"content"`
	Properties       []models.Property `json:"properties"`
	Path             string            `json:"path"`
	Vault            string            `json:"vault"`
	Behavior         string            `json:"behavior"`
	SpecificNoteName string            `json:"specificNoteName"`
	DailyNoteFormat  string            `json:"dailyNoteFormat"`
}

func (r noteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Behavior, validation.In(
			"",
			obsidian.BehaviorCreate,
			obsidian.BehaviorAppendSpecific,
			obsidian.BehaviorAppendDaily,
		)),
	)
}

func notBlank(v any) error {
	s, _ := v.(string)
	for _, c := range s {
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return nil
		}
	}
	return errors.New("must not be blank")
}
