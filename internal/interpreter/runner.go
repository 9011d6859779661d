package interpreter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pagechat/internal/metrics"
	"pagechat/internal/models"
	"pagechat/internal/settings"
)

const UnknownErrorMessage = "An unknown error occurred while processing the interpreter request."

var (
	ErrNoPromptVariables = errors.New("no prompt variables found, add at least one prompt variable to the template")
	ErrAlreadyRunning    = errors.New("interpreter is already running")
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

type State struct {
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Interpreter sends the collected variables to a model and returns one
// response per variable.
type Interpreter interface {
	Interpret(ctx context.Context, promptContext, content string, vars []models.PromptVariable, modelID string) ([]models.PromptResponse, error)
}

// Preparation describes how the interpreter should be presented for a
// template before anything is sent.
type Preparation struct {
	Visible       bool                    `json:"visible"`
	AutoRun       bool                    `json:"autoRun"`
	PromptContext string                  `json:"promptContext"`
	Variables     []models.PromptVariable `json:"variables"`
}

// Prepare hides the interpreter when it is disabled or the template has no
// prompt variables. The prompt context falls back from the template to the
// configured default to the built-in default.
func Prepare(s settings.Settings, tpl *models.Template, fields []models.Field) Preparation {
	vars := CollectPromptVariables(tpl, fields)
	p := Preparation{Variables: vars}
	if !s.InterpreterEnabled || len(vars) == 0 {
		return p
	}
	p.Visible = true
	p.AutoRun = s.InterpreterAutoRun
	switch {
	case tpl != nil && tpl.Context != "":
		p.PromptContext = tpl.Context
	case s.DefaultPromptContext != "":
		p.PromptContext = s.DefaultPromptContext
	default:
		p.PromptContext = settings.DefaultPromptContext
	}
	return p
}

type RunInput struct {
	Template      *models.Template
	Fields        []models.Field
	PromptContext string
	Content       string
	ModelID       string
}

type RunResult struct {
	Variables []models.PromptVariable `json:"variables"`
	Responses []models.PromptResponse `json:"responses"`
	Fields    []models.Field          `json:"fields"`
	Elapsed   time.Duration           `json:"elapsed"`
}

type RunnerConfig struct {
	Gateway  Interpreter
	Filters  FilterApplier
	NoteName NoteNameAdjuster
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Runner drives one interpreter run at a time through
// idle -> processing -> done|error. A Run started while another is
// processing fails with ErrAlreadyRunning and leaves the state alone.
type Runner struct {
	gateway  Interpreter
	filters  FilterApplier
	noteName NoteNameAdjuster
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	state State
}

func NewRunner(cfg RunnerConfig) *Runner {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		gateway:  cfg.Gateway,
		filters:  cfg.Filters,
		noteName: cfg.NoteName,
		logger:   cfg.Logger,
		metrics:  m,
		now:      now,
		state:    State{Status: StatusIdle},
	}
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// begin moves to processing unless a run is already in flight.
func (r *Runner) begin(start time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Status == StatusProcessing {
		return false
	}
	r.state = State{Status: StatusProcessing, StartedAt: start}
	return true
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run collects the variables, asks the model and splices the answers back
// into the fields.
func (r *Runner) Run(ctx context.Context, in RunInput) (RunResult, error) {
	start := r.now()
	if !r.begin(start) {
		return RunResult{}, ErrAlreadyRunning
	}

	vars := CollectPromptVariables(in.Template, in.Fields)
	if len(vars) == 0 {
		return RunResult{}, r.fail(start, ErrNoPromptVariables)
	}

	responses, err := r.gateway.Interpret(ctx, in.PromptContext, in.Content, vars, in.ModelID)
	if err != nil {
		return RunResult{Variables: vars}, r.fail(start, err)
	}

	fields := ReplacePromptVariables(in.Fields, vars, responses, r.filters, r.noteName)
	elapsed := r.now().Sub(start)
	r.setState(State{Status: StatusDone, StartedAt: start, Elapsed: elapsed})
	r.metrics.InterpreterRuns.WithLabelValues(string(StatusDone)).Inc()
	r.logger.Info().
		Int("variables", len(vars)).
		Int("responses", len(responses)).
		Dur("elapsed", elapsed).
		Msg("interpreter run done")

	return RunResult{Variables: vars, Responses: responses, Fields: fields, Elapsed: elapsed}, nil
}

func (r *Runner) fail(start time.Time, err error) error {
	msg := err.Error()
	if msg == "" {
		msg = UnknownErrorMessage
	}
	r.setState(State{Status: StatusError, Error: msg, StartedAt: start})
	r.metrics.InterpreterRuns.WithLabelValues(string(StatusError)).Inc()
	r.logger.Error().Err(err).Msg("interpreter run failed")
	return err
}
