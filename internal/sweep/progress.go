package sweep

import (
	"sync"
	"time"
)

// State is the controller's coarse position in the sweep.
type State string

const (
	StateIdle       State = "idle"
	StateResuming   State = "resuming"
	StateRunning    State = "running"
	StateRestarting State = "restarting_engine"
	StateAssembling State = "assembling"
	StateDone       State = "done"
	StateFault      State = "fault"
)

// Progress tracks sweep state for the status API. All mutation goes through
// the mutex; readers use Snapshot.
type Progress struct {
	mu sync.Mutex

	RunID          string
	State          State
	CurrentCell    int
	TotalCells     int
	CompletedCells int
	SkippedCells   []int
	Phase          string

	Errors []string

	StartedAt time.Time
	UpdatedAt time.Time
}

func NewProgress(runID string, totalCells int) *Progress {
	now := time.Now()
	return &Progress{
		RunID:      runID,
		State:      StateIdle,
		TotalCells: totalCells,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

func (p *Progress) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = s
	p.UpdatedAt = time.Now()
}

func (p *Progress) SetCell(cell int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentCell = cell
	p.Phase = ""
	p.UpdatedAt = time.Now()
}

func (p *Progress) SetPhase(cell int, phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentCell = cell
	p.Phase = phase
	p.UpdatedAt = time.Now()
}

func (p *Progress) CellCompleted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompletedCells++
	p.UpdatedAt = time.Now()
}

func (p *Progress) CellSkipped(cell int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SkippedCells = append(p.SkippedCells, cell)
	p.UpdatedAt = time.Now()
}

func (p *Progress) AddError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Errors = append(p.Errors, msg)
	p.UpdatedAt = time.Now()
}

// Snapshot is a read-only, JSON-safe copy of sweep progress.
type Snapshot struct {
	RunID          string    `json:"run_id"`
	State          State     `json:"state"`
	CurrentCell    int       `json:"current_cell"`
	TotalCells     int       `json:"total_cells"`
	CompletedCells int       `json:"completed_cells"`
	SkippedCells   []int     `json:"skipped_cells"`
	Phase          string    `json:"phase,omitempty"`
	Errors         []string  `json:"errors"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the current progress.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	skipped := append([]int(nil), p.SkippedCells...)
	if skipped == nil {
		skipped = []int{}
	}
	errs := append([]string(nil), p.Errors...)
	if errs == nil {
		errs = []string{}
	}
	return Snapshot{
		RunID:          p.RunID,
		State:          p.State,
		CurrentCell:    p.CurrentCell,
		TotalCells:     p.TotalCells,
		CompletedCells: p.CompletedCells,
		SkippedCells:   skipped,
		Phase:          p.Phase,
		Errors:         errs,
		StartedAt:      p.StartedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
