package workflow

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Run Records
// ---------------------------------------------------------------------------

// Run is one orchestration cycle. Write-once aside from Close.
type Run struct {
	ID             string
	StartedAt      time.Time
	EndedAt        *time.Time
	Env            string
	EligibleCount  int
	ProcessedCount int
	HeldCount      int
	FailedCount    int
}

// NewRun creates a run record with a fresh correlation id
func NewRun(env string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Env:       env,
	}
}

// Close stamps the end time and final counts
func (r *Run) Close(eligible, processed, held, failed int) {
	now := time.Now().UTC()
	r.EndedAt = &now
	r.EligibleCount = eligible
	r.ProcessedCount = processed
	r.HeldCount = held
	r.FailedCount = failed
}

// RunOrder is the per-order outcome within one run
type RunOrder struct {
	RunID     string
	OrderNum  int
	Status    Status
	LastStep  Step
	UpdatedAt time.Time
}
