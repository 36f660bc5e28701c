package workflow

// ---------------------------------------------------------------------------
// Step Results
// ---------------------------------------------------------------------------

// Outcome classifies the result of executing one pipeline step
type Outcome int

const (
	// OutcomeAdvance means the step completed and the next step may run
	OutcomeAdvance Outcome = iota
	// OutcomeHold means the step hit an expected condition and the order is
	// parked until the next cycle; not a failure
	OutcomeHold
	// OutcomeFail means the step hit a non-recoverable error; the order
	// stops and requires operator action
	OutcomeFail
	// OutcomeComplete means the step determined the whole order is already
	// complete and the remaining steps must be skipped
	OutcomeComplete
)

// StepResult is the tagged result returned by every pipeline step.
// Expected holds are values, never panics or sentinel control-flow errors,
// so the state machine's branching stays exhaustive and testable.
type StepResult struct {
	Outcome  Outcome
	HoldStep Step
	Reason   string
	Err      error
}

// Advance returns a result that lets the pipeline continue
func Advance() StepResult {
	return StepResult{Outcome: OutcomeAdvance}
}

// Hold returns a result that parks the order at the given hold step
func Hold(step Step, reason string) StepResult {
	return StepResult{Outcome: OutcomeHold, HoldStep: step, Reason: reason}
}

// Fail returns a result that stops the order with a non-recoverable error
func Fail(err error) StepResult {
	return StepResult{Outcome: OutcomeFail, Err: err}
}

// Finish returns a result that short-circuits the pipeline to COMPLETE
func Finish(step Step, reason string) StepResult {
	return StepResult{Outcome: OutcomeComplete, HoldStep: step, Reason: reason}
}
