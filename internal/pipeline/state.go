package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Phase identifies one of the five pipeline phases.
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseGrouping   Phase = "grouping"
	PhaseMapping    Phase = "mapping"
	PhaseConflicts  Phase = "conflicts"
	PhaseExtraction Phase = "extraction"
)

// phaseOrder drives precondition checks: each phase requires the one
// before it to have completed.
var phaseOrder = []Phase{PhaseDiscovery, PhaseGrouping, PhaseMapping, PhaseConflicts, PhaseExtraction}

type PhaseStatus string

const (
	StatusNotStarted PhaseStatus = "not-started"
	StatusRunning    PhaseStatus = "running"
	StatusCompleted  PhaseStatus = "completed"
	StatusFailed     PhaseStatus = "failed"
)

// ErrPreconditionNotMet distinguishes running a phase out of order from
// every degradable failure the phases record in their reports.
var ErrPreconditionNotMet = errors.New("phase precondition not met")

type PhaseRecord struct {
	Status      PhaseStatus `json:"status"`
	StartedAt   string      `json:"startedAt,omitempty"`
	CompletedAt string      `json:"completedAt,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// GroupStatus tracks the per-group approval and extraction lifecycle.
type GroupStatus struct {
	Approved   bool   `json:"approved"`
	ApprovedAt string `json:"approvedAt,omitempty"`
	Extraction string `json:"extraction,omitempty"`
	Validation string `json:"validation,omitempty"`
}

// State is the single source of truth for idempotent resumption. It is
// rewritten wholesale after every phase step.
type State struct {
	RunID    string                  `json:"runId"`
	Phases   map[Phase]*PhaseRecord  `json:"phases"`
	Counters map[string]int          `json:"counters"`
	Groups   map[string]*GroupStatus `json:"groups"`

	// LastExtractionRun is the value-store run id of the most recent
	// live extraction, kept for the validation recount.
	LastExtractionRun string `json:"lastExtractionRun,omitempty"`

	dataDir string
}

func newState(dataDir string) *State {
	return &State{
		RunID:    uuid.NewString(),
		Phases:   map[Phase]*PhaseRecord{},
		Counters: map[string]int{},
		Groups:   map[string]*GroupStatus{},
		dataDir:  dataDir,
	}
}

// LoadState reads the persisted state, creating a fresh one when the
// data directory has never been used.
func LoadState(dataDir string) (*State, error) {
	path := filepath.Join(dataDir, stateFile)
	if !artifactExists(path) {
		return newState(dataDir), nil
	}

	var st State
	if err := readJSON(path, &st); err != nil {
		return nil, err
	}
	if st.RunID == "" {
		return nil, fmt.Errorf("malformed artifact %s: missing runId", path)
	}
	if st.Phases == nil {
		st.Phases = map[Phase]*PhaseRecord{}
	}
	if st.Counters == nil {
		st.Counters = map[string]int{}
	}
	if st.Groups == nil {
		st.Groups = map[string]*GroupStatus{}
	}
	st.dataDir = dataDir
	return &st, nil
}

func (s *State) Save() error {
	return writeJSONAtomic(filepath.Join(s.dataDir, stateFile), s)
}

func (s *State) Phase(phase Phase) PhaseRecord {
	if rec := s.Phases[phase]; rec != nil {
		return *rec
	}
	return PhaseRecord{Status: StatusNotStarted}
}

func (s *State) Group(name string) *GroupStatus {
	if s.Groups[name] == nil {
		s.Groups[name] = &GroupStatus{}
	}
	return s.Groups[name]
}

// requirePredecessor enforces explicit phase ordering from the recorded
// status enum, not from artifact existence.
func (s *State) requirePredecessor(phase Phase) error {
	for i, p := range phaseOrder {
		if p != phase {
			continue
		}
		if i == 0 {
			return nil
		}
		prev := phaseOrder[i-1]
		if s.Phase(prev).Status != StatusCompleted {
			return fmt.Errorf("%w: %s requires completed %s (status: %s)", ErrPreconditionNotMet, phase, prev, s.Phase(prev).Status)
		}
		return nil
	}
	return fmt.Errorf("unknown phase: %s", phase)
}

func (s *State) beginPhase(phase Phase) error {
	if err := s.requirePredecessor(phase); err != nil {
		return err
	}
	s.Phases[phase] = &PhaseRecord{
		Status:    StatusRunning,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return s.Save()
}

func (s *State) completePhase(phase Phase) error {
	rec := s.Phases[phase]
	rec.Status = StatusCompleted
	rec.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	rec.Error = ""
	return s.Save()
}

func (s *State) failPhase(phase Phase, cause error) {
	rec := s.Phases[phase]
	if rec == nil {
		rec = &PhaseRecord{}
		s.Phases[phase] = rec
	}
	rec.Status = StatusFailed
	rec.Error = cause.Error()
	_ = s.Save()
}

// Lock takes the advisory per-directory lock. Concurrent runs against
// one data directory are unsupported and must be serialized externally;
// the lock turns a mistake into an error instead of corruption.
type Lock struct {
	path string
}

func AcquireLock(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, ".pipeline.lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("data directory %s is locked by another run (remove %s if stale)", dataDir, path)
		}
		return nil, err
	}
	fmt.Fprintf(f, "pid=%d started=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_ = f.Close()

	return &Lock{path: path}, nil
}

func (l *Lock) Release() error {
	return os.Remove(l.path)
}
