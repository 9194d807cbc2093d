package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"petintake/internal/ingestion"
)

var (
	ErrBusy             = errors.New("wizard action already in progress")
	ErrAlreadyCompleted = errors.New("wizard already completed")
	ErrStepOutOfRange   = errors.New("step out of range")
	ErrNotSkippable     = errors.New("step cannot be skipped")
	ErrNotTerminal      = errors.New("current step has no completion action")
	ErrTerminalStep     = errors.New("current step completes the wizard and cannot advance")
	ErrNoVerification   = errors.New("current step has no verification code")
	ErrInvalidFlow      = errors.New("invalid wizard definition")
	ErrStepIncomplete   = errors.New("an earlier step has not been completed")
)

// TerminalRequest is the read-only input handed to a flow's completion action.
type TerminalRequest struct {
	Form  Form
	Token string
	Code  string
}

type TerminalAction func(ctx context.Context, req TerminalRequest) (*Outcome, error)

// Exit is a next-action offered after a successful completion.
type Exit struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

type Outcome struct {
	PetID string `json:"petId"`
	Exits []Exit `json:"exits"`
	// Token is a credential issued during completion, if any.
	Token string `json:"-"`
}

type StepSpec struct {
	Name          string
	Title         string
	Validate      Validator
	Optional      bool
	Verification  bool
	BeforeAdvance func(ctx context.Context, form Form) error
	Terminal      TerminalAction
}

type Definition struct {
	Name           string
	Steps          []StepSpec
	ResendCode     func(ctx context.Context, form Form) error
	ResendCooldown time.Duration
}

func (d Definition) validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %q has no steps", ErrInvalidFlow, d.Name)
	}

	seen := make(map[string]bool, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" || seen[step.Name] {
			return fmt.Errorf("%w: step %d needs a unique name", ErrInvalidFlow, i+1)
		}
		seen[step.Name] = true

		last := i == len(d.Steps)-1
		if step.Terminal != nil && !last {
			return fmt.Errorf("%w: only the last step may complete the flow", ErrInvalidFlow)
		}
		if last && step.Terminal == nil {
			return fmt.Errorf("%w: last step %q has no completion action", ErrInvalidFlow, step.Name)
		}
		if step.Terminal != nil && step.Optional {
			return fmt.Errorf("%w: completion step %q cannot be optional", ErrInvalidFlow, step.Name)
		}
	}
	return nil
}

type StepView struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Optional bool   `json:"optional"`
	Terminal bool   `json:"terminal"`
}

type Snapshot struct {
	Flow       string      `json:"flow"`
	Step       StepView    `json:"step"`
	Steps      []StepView  `json:"steps"`
	Form       Form        `json:"form"`
	Message    string      `json:"message,omitempty"`
	FieldError *FieldError `json:"fieldError,omitempty"`
	OTP        *OTPState   `json:"otp,omitempty"`
	Busy       bool        `json:"busy"`
	Outcome    *Outcome    `json:"outcome,omitempty"`
	// Confirmed names the steps whose BeforeAdvance hook has succeeded.
	Confirmed []string `json:"confirmed,omitempty"`
}

// Machine walks a Definition. Step numbers are 1-based. Network-bound actions run without the
// lock held and are guarded by the busy flag; Reset invalidates any action still in flight.
type Machine struct {
	mu         sync.Mutex
	def        Definition
	step       int
	form       Form
	message    string
	fieldErr   *FieldError
	otp        OTPState
	busy       bool
	outcome    *Outcome
	confirmed  map[string]bool
	generation uint64
	now        func() time.Time
}

func NewMachine(def Definition) (*Machine, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	if def.ResendCooldown <= 0 {
		def.ResendCooldown = DefaultResendCooldown
	}
	return &Machine{def: def, step: 1, confirmed: make(map[string]bool), now: time.Now}, nil
}

func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *Machine) Flow() string {
	return m.def.Name
}

func (m *Machine) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

func (m *Machine) Form() Form {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.form
}

// GoToStep moves unconditionally and clears any step-scoped message.
func (m *Machine) GoToStep(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return ErrBusy
	}
	return m.goTo(n)
}

// Advance runs the current step's validator and, if it passes, its BeforeAdvance hook, then
// moves to the next step. A failing validator leaves the step pointer unchanged.
func (m *Machine) Advance(ctx context.Context) error {
	m.mu.Lock()
	spec := m.spec()

	if spec.Terminal != nil {
		m.mu.Unlock()
		return ErrTerminalStep
	}
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if fieldErr := m.check(spec); fieldErr != nil {
		m.mu.Unlock()
		return fieldErr
	}

	if spec.BeforeAdvance != nil {
		m.busy = true
		generation := m.generation
		form := m.form
		m.mu.Unlock()

		err := spec.BeforeAdvance(ctx, form)

		m.mu.Lock()
		m.busy = false
		if generation != m.generation {
			m.mu.Unlock()
			return err
		}
		if err != nil {
			m.message = messageFor(err)
			m.mu.Unlock()
			return err
		}
		m.confirmed[spec.Name] = true
	}
	defer m.mu.Unlock()

	next := m.step + 1
	if m.def.Steps[next-1].Verification {
		m.otp = OTPState{
			CooldownUntil: m.now().Add(m.def.ResendCooldown),
			Info:          fmt.Sprintf("We sent a verification code to %s.", strings.TrimSpace(m.form.Email)),
		}
	}
	return m.goTo(next)
}

// Skip bypasses validation on optional steps.
func (m *Machine) Skip() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	spec := m.spec()
	if !spec.Optional || spec.Terminal != nil {
		return ErrNotSkippable
	}
	if m.busy {
		return ErrBusy
	}
	return m.goTo(m.step + 1)
}

// Back never touches form values.
func (m *Machine) Back() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return ErrBusy
	}
	if m.step == 1 {
		return nil
	}
	return m.goTo(m.step - 1)
}

func (m *Machine) Update(patch FormPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	patch.Apply(&m.form)
}

// Reset empties every field, returns to step 1 and discards verification state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.form = Form{}
	m.step = 1
	m.message = ""
	m.fieldErr = nil
	m.otp = OTPState{}
	m.outcome = nil
	m.confirmed = make(map[string]bool)
}

func (m *Machine) SetCode(code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.spec().Verification {
		return ErrNoVerification
	}
	m.otp.Code = strings.TrimSpace(code)
	return nil
}

// ResendCode asks for a new verification code. Inside the cooldown window it only updates the
// info message.
func (m *Machine) ResendCode(ctx context.Context) error {
	m.mu.Lock()

	if !m.spec().Verification || m.def.ResendCode == nil {
		m.mu.Unlock()
		return ErrNoVerification
	}
	if m.otp.Loading || m.busy {
		m.mu.Unlock()
		return ErrBusy
	}

	now := m.now()
	if m.otp.CoolingDown(now) {
		m.otp.Info = fmt.Sprintf("Please wait %d seconds before requesting a new code.", m.otp.RemainingSeconds(now))
		m.mu.Unlock()
		return nil
	}

	m.otp.Loading = true
	generation := m.generation
	form := m.form
	m.mu.Unlock()

	err := m.def.ResendCode(ctx, form)

	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != m.generation {
		return err
	}
	m.otp.Loading = false
	if err != nil {
		m.otp.Info = ""
		m.message = messageFor(err)
		return err
	}
	m.otp.CooldownUntil = m.now().Add(m.def.ResendCooldown)
	m.otp.Info = fmt.Sprintf("A new code has been sent to %s.", strings.TrimSpace(form.Email))
	return nil
}

// Complete runs the terminal step's action once. Every earlier required step must validate and
// have its BeforeAdvance hook confirmed; otherwise the machine moves back to the first such step.
// A second call while the first is in flight returns ErrBusy, and after success
// ErrAlreadyCompleted.
func (m *Machine) Complete(ctx context.Context, token string) (*Outcome, error) {
	m.mu.Lock()
	spec := m.spec()

	switch {
	case spec.Terminal == nil:
		m.mu.Unlock()
		return nil, ErrNotTerminal
	case m.busy:
		m.mu.Unlock()
		return nil, ErrBusy
	case m.outcome != nil:
		m.mu.Unlock()
		return nil, ErrAlreadyCompleted
	}
	if err := m.checkEarlierSteps(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if fieldErr := m.check(spec); fieldErr != nil {
		m.mu.Unlock()
		return nil, fieldErr
	}

	m.busy = true
	if spec.Verification {
		m.otp.Loading = true
	}
	generation := m.generation
	req := TerminalRequest{Form: m.form, Token: token, Code: m.otp.Code}
	m.mu.Unlock()

	outcome, err := spec.Terminal(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.busy = false
	if generation != m.generation {
		return outcome, err
	}
	m.otp.Loading = false
	if err != nil {
		m.message = messageFor(err)
		return nil, err
	}

	m.outcome = outcome
	m.message = ""
	m.fieldErr = nil
	return outcome, nil
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]StepView, len(m.def.Steps))
	for i, spec := range m.def.Steps {
		views[i] = StepView{
			Number:   i + 1,
			Name:     spec.Name,
			Title:    spec.Title,
			Optional: spec.Optional,
			Terminal: spec.Terminal != nil,
		}
	}

	snapshot := Snapshot{
		Flow:       m.def.Name,
		Step:       views[m.step-1],
		Steps:      views,
		Form:       m.form.Redacted(),
		Message:    m.message,
		FieldError: m.fieldErr,
		Busy:       m.busy,
		Outcome:    m.outcome,
	}
	for _, spec := range m.def.Steps {
		if m.confirmed[spec.Name] {
			snapshot.Confirmed = append(snapshot.Confirmed, spec.Name)
		}
	}
	if m.spec().Verification {
		otp := m.otp
		snapshot.OTP = &otp
	}
	return snapshot
}

// Restore reloads a persisted snapshot into a fresh machine of the same flow.
func (m *Machine) Restore(snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snapshot.Flow != m.def.Name {
		return fmt.Errorf("%w: snapshot flow %q does not match %q", ErrInvalidFlow, snapshot.Flow, m.def.Name)
	}
	if snapshot.Step.Number < 1 || snapshot.Step.Number > len(m.def.Steps) {
		return ErrStepOutOfRange
	}

	m.form = snapshot.Form
	m.step = snapshot.Step.Number
	m.outcome = snapshot.Outcome
	m.confirmed = make(map[string]bool, len(snapshot.Confirmed))
	for _, name := range snapshot.Confirmed {
		m.confirmed[name] = true
	}
	if snapshot.OTP != nil {
		m.otp = OTPState{CooldownUntil: snapshot.OTP.CooldownUntil}
	}
	return nil
}

func (m *Machine) spec() StepSpec {
	return m.def.Steps[m.step-1]
}

func (m *Machine) goTo(n int) error {
	if n < 1 || n > len(m.def.Steps) {
		return ErrStepOutOfRange
	}
	m.step = n
	m.message = ""
	m.fieldErr = nil
	return nil
}

func (m *Machine) check(spec StepSpec) *FieldError {
	if spec.Validate == nil {
		m.message = ""
		m.fieldErr = nil
		return nil
	}
	if fieldErr := spec.Validate(m.form, m.otp); fieldErr != nil {
		m.message = fieldErr.Message
		m.fieldErr = fieldErr
		return fieldErr
	}
	m.message = ""
	m.fieldErr = nil
	return nil
}

// checkEarlierSteps re-checks every required step before the current one, since GoToStep can
// jump past them. Optional steps and steps whose hook already succeeded are not re-checked.
func (m *Machine) checkEarlierSteps() error {
	for i := 0; i < m.step-1; i++ {
		spec := m.def.Steps[i]
		if spec.Optional || m.confirmed[spec.Name] {
			continue
		}

		if spec.Validate != nil {
			if fieldErr := spec.Validate(m.form, m.otp); fieldErr != nil {
				_ = m.goTo(i + 1)
				m.message = fieldErr.Message
				m.fieldErr = fieldErr
				return fieldErr
			}
		}

		if spec.BeforeAdvance != nil && !m.confirmed[spec.Name] {
			_ = m.goTo(i + 1)
			m.message = fmt.Sprintf("Please complete %q before finishing.", spec.Title)
			return fmt.Errorf("%w: %s", ErrStepIncomplete, spec.Name)
		}
	}
	return nil
}

func messageFor(err error) string {
	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr.Message
	}
	return ingestion.Classify(err).Message
}
