package swapsupply

import (
	"errors"
	"fmt"
)

var (
	ErrTxReverted        = errors.New("transaction reverted")
	ErrNoOutput          = errors.New("swap produced no output")
	ErrExecutionDisabled = errors.New("execution disabled by flag")
	ErrRiskRejected      = errors.New("risk check rejected")
	ErrInvalidIntent     = errors.New("invalid intent")
)

// StepError records which step of a run failed and, once a transaction was
// sent, its hash.
type StepError struct {
	Step   string
	TxHash string
	Err    error
}

func (e *StepError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s (tx %s): %v", e.Step, e.TxHash, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step, txHash string, err error) error {
	return &StepError{Step: step, TxHash: txHash, Err: err}
}

// FailedStep returns the step name carried by err, or "" when err did not
// come from a step.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
