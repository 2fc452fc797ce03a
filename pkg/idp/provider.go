package idp

import (
	"context"

	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

// Account is the data the identity provider needs to create a login
type Account struct {
	UserID            string
	Email             string
	FirstName         string
	LastName          string
	DistrictID        string
	TemporaryPassword string
}

// Provider is the identity provider collaborator
type Provider interface {
	CreateAccount(ctx context.Context, account Account) error
	SetPassword(ctx context.Context, username, password string) error
	ConfirmForgotPassword(ctx context.Context, username, code, password string) error
}

// Noop accepts every call and logs it
type Noop struct {
	logger *observability.Logger
}

// NewNoop creates a provider that performs no upstream calls
func NewNoop(logger *observability.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) CreateAccount(ctx context.Context, account Account) error {
	n.log(ctx).WithField("username", account.UserID).WithField("email", account.Email).Info("noop identity provider: create account")
	return nil
}

func (n *Noop) SetPassword(ctx context.Context, username, _ string) error {
	n.log(ctx).WithField("username", username).Info("noop identity provider: set password")
	return nil
}

func (n *Noop) ConfirmForgotPassword(ctx context.Context, username, _, _ string) error {
	n.log(ctx).WithField("username", username).Info("noop identity provider: confirm forgot password")
	return nil
}

func (n *Noop) log(ctx context.Context) *observability.Logger {
	if n.logger != nil {
		return n.logger
	}
	return observability.FromContext(ctx)
}
