package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmorgan81/stabilitybot/internal/image"
	"github.com/dmorgan81/stabilitybot/internal/log"
	"github.com/samber/do"
	"golang.org/x/sync/semaphore"
)

// Result is the settled outcome of one submission: exactly one of Artifact and
// Failure is set.
type Result struct {
	Artifact *image.Artifact
	Failure  *Failure
}

func (r Result) Ok() bool {
	return r.Failure == nil
}

// State is everything the presentation layer needs between submissions. Image
// holds the last successful artifact and survives failed submissions.
type State struct {
	Prompt            string
	Image             *image.Artifact
	Failure           *Failure
	Submitting        bool
	CredentialMissing bool
	ShowGuidelines    bool
}

func (s State) fail(f *Failure) (State, Result) {
	s.Failure = f
	s.Submitting = false
	return s, Result{Failure: f}
}

type View struct {
	Prompt            string `json:"prompt"`
	Busy              bool   `json:"busy"`
	CredentialMissing bool   `json:"credentialMissing"`
	ShowGuidelines    bool   `json:"showGuidelines"`
	Error             string `json:"error,omitempty"`
	ErrorKind         string `json:"errorKind,omitempty"`
	Image             string `json:"image,omitempty"`
}

func (s State) View() View {
	v := View{
		Prompt:            s.Prompt,
		Busy:              s.Submitting,
		CredentialMissing: s.CredentialMissing,
		ShowGuidelines:    s.ShowGuidelines,
	}
	if s.Failure != nil {
		v.Error, v.ErrorKind = s.Failure.Message, s.Failure.Kind.String()
	}
	if s.Image != nil {
		v.Image = s.Image.DataURI()
	}
	return v
}

type Orchestrator struct {
	generator image.Generator
	key       string
	timeout   time.Duration
}

func NewOrchestrator(i *do.Injector) (*Orchestrator, error) {
	return &Orchestrator{
		generator: do.MustInvoke[image.Generator](i),
		key:       do.MustInvokeNamed[string](i, "stability_key"),
		timeout:   do.MustInvokeNamed[time.Duration](i, "request_timeout"),
	}, nil
}

func (o *Orchestrator) NewState() State {
	return State{CredentialMissing: o.key == ""}
}

// Submit validates the prompt and credential, makes at most one call to the
// generator and returns the next state along with the result. A zero timeout
// leaves the call bounded only by ctx.
func (o *Orchestrator) Submit(ctx context.Context, state State, prompt string) (State, Result) {
	log := log.FromContextOrDiscard(ctx).WithGroup("orchestrator")
	state.Prompt = prompt

	if o.key == "" || state.CredentialMissing {
		state.CredentialMissing = true
		return state.fail(newFailure(KindMissingCredential, MsgMissingCredential))
	}
	if strings.TrimSpace(prompt) == "" {
		return state.fail(newFailure(KindEmptyPrompt, MsgEmptyPrompt))
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	artifact, err := o.generator.Generate(ctx, image.NewParams(prompt))
	if err != nil {
		f := Classify(err)
		attrs := []any{"message", f.Message, "kind", f.Kind.String()}
		var apiErr *image.APIError
		if errors.As(err, &apiErr) {
			attrs = append(attrs, "status", apiErr.StatusCode, "statusText", http.StatusText(apiErr.StatusCode))
		}
		log.Error("error generating image", attrs...)

		switch f.Kind {
		case KindInvalidCredential:
			state.CredentialMissing = true
		case KindContentModerationFlagged:
			state.ShowGuidelines = true
		}
		return state.fail(f)
	}

	state.Image = &artifact
	state.Failure = nil
	state.ShowGuidelines = false
	state.Submitting = false
	return state, Result{Artifact: &artifact}
}

// Session holds the state of one UI session and admits one submission at a
// time.
type Session struct {
	orchestrator *Orchestrator
	inflight     *semaphore.Weighted

	mu    sync.Mutex
	state State
}

func NewSession(i *do.Injector) (*Session, error) {
	o := do.MustInvoke[*Orchestrator](i)
	return &Session{
		orchestrator: o,
		inflight:     semaphore.NewWeighted(1),
		state:        o.NewState(),
	}, nil
}

// Submit runs one submission against the session state. It returns false
// without doing anything if another submission is still in flight.
func (s *Session) Submit(ctx context.Context, prompt string) (Result, bool) {
	if !s.inflight.TryAcquire(1) {
		log.FromContextOrDiscard(ctx).WithGroup("session").Info("ignoring submission while busy")
		return Result{}, false
	}
	defer s.inflight.Release(1)

	s.mu.Lock()
	s.state.Submitting = true
	current := s.state
	s.mu.Unlock()

	next, result := s.orchestrator.Submit(ctx, current, prompt)

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return result, true
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
