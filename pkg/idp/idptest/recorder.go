// Package idptest provides an in-memory identity provider for tests.
package idptest

import (
	"context"
	"sync"

	"github.com/platinummonkey/schoolhouse/pkg/idp"
)

// Call is one recorded provider call
type Call struct {
	Operation string
	Account   idp.Account
	Username  string
	Code      string
	Password  string
}

// Operation names
const (
	OpCreateAccount         = "CreateAccount"
	OpSetPassword           = "SetPassword"
	OpConfirmForgotPassword = "ConfirmForgotPassword"
)

// Recorder implements idp.Provider, records every call and can be told to
// fail an operation
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	failures map[string]error
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{failures: make(map[string]error)}
}

// FailWith makes every later call of operation return err. A nil err clears it.
func (r *Recorder) FailWith(operation string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, operation)
		return
	}
	r.failures[operation] = err
}

// Calls returns a copy of the recorded calls
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the recorded calls of one operation
func (r *Recorder) CallsTo(operation string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Operation == operation {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls and failures
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.failures = make(map[string]error)
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.failures[c.Operation]
}

func (r *Recorder) CreateAccount(_ context.Context, account idp.Account) error {
	return r.record(Call{Operation: OpCreateAccount, Account: account, Username: account.UserID})
}

func (r *Recorder) SetPassword(_ context.Context, username, password string) error {
	return r.record(Call{Operation: OpSetPassword, Username: username, Password: password})
}

func (r *Recorder) ConfirmForgotPassword(_ context.Context, username, code, password string) error {
	return r.record(Call{Operation: OpConfirmForgotPassword, Username: username, Code: code, Password: password})
}

var _ idp.Provider = (*Recorder)(nil)
