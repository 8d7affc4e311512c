package state

import (
	"context"
	"slices"
	"sync"
	"time"

	cislinesdk "cisline/sdk/go"
)

type CredentialChecker interface {
	CheckEmail(ctx context.Context, email string) (cislinesdk.EmailCheck, error)
	CheckPassword(ctx context.Context, password string, userInputs ...string) (cislinesdk.PasswordCheck, error)
}

// CheckState is the lifecycle of one debounced credential check.
type CheckState int

const (
	CheckIdle CheckState = iota
	CheckPending
	CheckValid
	CheckInvalid
	CheckError
)

// CredentialGate debounces email availability and password strength checks
// for a create-profile form. Ready holds only once both checks settled valid
// for the values currently entered.
type CredentialGate struct {
	checker CredentialChecker
	email   *Debouncer
	pass    *Debouncer

	mu          sync.Mutex
	emailValue  string
	emailState  CheckState
	emailReason string
	passValue   string
	passInputs  []string
	passState   CheckState
	passReason  string
}

func NewCredentialGate(checker CredentialChecker, delay time.Duration) *CredentialGate {
	return &CredentialGate{
		checker: checker,
		email:   NewDebouncer(delay),
		pass:    NewDebouncer(delay),
	}
}

// SetEmail records the entered email and schedules its check. The email is
// also a password input, so an entered password is rescored with it.
func (g *CredentialGate) SetEmail(ctx context.Context, email string) {
	g.mu.Lock()
	old := g.emailValue
	g.emailValue = email
	g.emailState, g.emailReason = CheckPending, ""
	rescore := g.passValue != "" && old != email
	if rescore {
		g.passInputs = replaceInput(g.passInputs, old, email)
	}
	g.mu.Unlock()
	if rescore {
		g.schedulePassword(ctx)
	}
	if email == "" {
		g.email.Stop()
		g.mu.Lock()
		g.emailState = CheckIdle
		g.mu.Unlock()
		return
	}
	g.email.Schedule(func() {
		res, err := g.checker.CheckEmail(ctx, email)
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.emailValue != email {
			return
		}
		switch {
		case err != nil:
			g.emailState, g.emailReason = CheckError, errorText(err)
		case res.Valid && res.Available:
			g.emailState = CheckValid
		default:
			g.emailState, g.emailReason = CheckInvalid, res.Reason
		}
	})
}

// SetPassword records the entered password and schedules its scoring.
// userInputs (login, nickname) weaken passwords that contain them; the
// current email always counts as one.
func (g *CredentialGate) SetPassword(ctx context.Context, password string, userInputs ...string) {
	g.mu.Lock()
	g.passValue = password
	g.passInputs = append([]string(nil), userInputs...)
	g.passState, g.passReason = CheckPending, ""
	g.mu.Unlock()
	if password == "" {
		g.pass.Stop()
		g.mu.Lock()
		g.passState = CheckIdle
		g.mu.Unlock()
		return
	}
	g.schedulePassword(ctx)
}

func (g *CredentialGate) schedulePassword(ctx context.Context) {
	g.mu.Lock()
	password, inputs := g.passValue, g.scoringInputs()
	g.passState, g.passReason = CheckPending, ""
	g.mu.Unlock()
	g.pass.Schedule(func() {
		res, err := g.checker.CheckPassword(ctx, password, inputs...)
		g.mu.Lock()
		defer g.mu.Unlock()
		// a result for an older password or email is stale
		if g.passValue != password || !slices.Equal(g.scoringInputs(), inputs) {
			return
		}
		switch {
		case err != nil:
			g.passState, g.passReason = CheckError, errorText(err)
		case res.Strong:
			g.passState = CheckValid
		default:
			g.passState, g.passReason = CheckInvalid, res.Reason
		}
	})
}

// scoringInputs is passInputs plus the current email. Callers hold g.mu.
func (g *CredentialGate) scoringInputs() []string {
	inputs := append([]string(nil), g.passInputs...)
	if g.emailValue != "" && !slices.Contains(inputs, g.emailValue) {
		inputs = append(inputs, g.emailValue)
	}
	return inputs
}

func replaceInput(inputs []string, old, next string) []string {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if old != "" && in == old {
			if next == "" {
				continue
			}
			in = next
		}
		out = append(out, in)
	}
	return out
}

// Flush runs any pending checks immediately.
func (g *CredentialGate) Flush() {
	g.email.Flush()
	g.pass.Flush()
}

func (g *CredentialGate) Stop() {
	g.email.Stop()
	g.pass.Stop()
}

func (g *CredentialGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emailState == CheckValid && g.passState == CheckValid
}

// Email returns the email check state and the rejection reason, if any.
func (g *CredentialGate) Email() (CheckState, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emailState, g.emailReason
}

func (g *CredentialGate) Password() (CheckState, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.passState, g.passReason
}

// Values returns the email and password the gate last accepted input for.
func (g *CredentialGate) Values() (email, password string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emailValue, g.passValue
}
