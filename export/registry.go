package export

import (
	"context"
	"fmt"
	"sync"
)

// ExportFunc is the user-supplied generation function. It streams the
// export payload directly to w; it must not buffer the whole artifact in
// memory. Transient local I/O faults should be returned marked with
// ErrGenerateRecoverable so the pipeline retries them.
type ExportFunc func(ctx context.Context, w ProgressWriter, params map[string]any) error

// ProgressWriter is what an ExportFunc writes its output through, with an
// optional progress side channel.
type ProgressWriter interface {
	Write(p []byte) (int, error)
	// ReportProgress pushes a 0-100 progress value. Best-effort; failures
	// are logged by the engine, never returned to the export function.
	ReportProgress(percent int)
}

// JobSpec declares an export job: its identity, metadata, and generation
// function. Specs are registered once at startup and resolved by task code.
type JobSpec struct {
	Code           string   // task code, unique per app
	Description    string   // human name; also used for the artifact name
	FileSuffix     string   // default artifact suffix, e.g. ".csv"
	NotifyEnabled  bool     // notify the operator on terminal state
	NotifyChannel  string   // channel tag handed to the notifier
	MaxServerRetry int      // server-side retry budget recorded on the record
	EnableCache    bool     // reuse a prior success artifact when params agree
	CacheKeys      []string // dotted-path params that identify a reusable result
	Export         ExportFunc
}

// Registry resolves job specs by task code.
// Thread-safe for concurrent registration and lookup.
type Registry struct {
	specs map[string]*JobSpec
	mu    sync.RWMutex
}

// NewRegistry creates an empty job spec registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*JobSpec)}
}

// Register adds a spec by its code.
// Panics if a spec is already registered with that code.
func (r *Registry) Register(spec *JobSpec) {
	if spec.Code == "" {
		panic("job spec missing code")
	}
	if spec.Export == nil {
		panic(fmt.Sprintf("job spec %s missing export function", spec.Code))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Code]; exists {
		panic(fmt.Sprintf("job spec already registered for code: %s", spec.Code))
	}
	r.specs[spec.Code] = spec
}

// Get retrieves the spec for a task code.
// Returns nil if no spec is registered.
func (r *Registry) Get(code string) *JobSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[code]
}

// Codes returns all registered task codes.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.specs))
	for code := range r.specs {
		codes = append(codes, code)
	}
	return codes
}
