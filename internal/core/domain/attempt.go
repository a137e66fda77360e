package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step is the lifecycle state of one payment session.
type Step string

const (
	StepConnect     Step = "CONNECT"
	StepVerify      Step = "VERIFY"
	StepConvert     Step = "CONVERT"
	StepPay         Step = "PAY"
	StepSuccess     Step = "SUCCESS"
	StepAlreadyPaid Step = "ALREADY_PAID"
)

// TransactionAttempt tracks one user payment session. It is owned exclusively
// by the lifecycle controller and discarded on completion or navigation away;
// nothing here survives the session.
type TransactionAttempt struct {
	ID          uuid.UUID
	Step        Step
	TransientID string // wallet-issued identifier, pre-confirmation
	ConfirmedID string
	Attempts    int
	LastErr     error
	StartedAt   time.Time
}

// NewAttempt starts a session in the Connect step.
func NewAttempt() *TransactionAttempt {
	return &TransactionAttempt{
		ID:        uuid.New(),
		Step:      StepConnect,
		StartedAt: time.Now().UTC(),
	}
}

// Advance moves the attempt to the given step.
func (a *TransactionAttempt) Advance(step Step) {
	a.Step = step
}

// Terminal reports whether the attempt reached a final state.
func (a *TransactionAttempt) Terminal() bool {
	return a.Step == StepSuccess || a.Step == StepAlreadyPaid
}
