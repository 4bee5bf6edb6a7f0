// Package tracestore persists mission traces in a two-tier layout: an
// authoritative in-memory map plus a best-effort JSON-file-per-trace
// directory. Disk failures degrade the store to memory-only for the rest
// of the process lifetime; corrupt files are skipped, never fatal.
package tracestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hivemind-ai/hivemind/pkg/models"
)

// ErrTerminalTransition is returned when an update would move a trace out
// of a terminal status.
var ErrTerminalTransition = errors.New("trace is already in a terminal status")

// Store is the two-tier trace store. Safe for concurrent use across
// missions; disk writes happen outside the in-memory critical section.
type Store struct {
	dir string

	mu     sync.RWMutex
	traces map[string]*models.Trace

	// memoryOnly flips to true after the first disk failure and stays set.
	memoryOnly atomic.Bool
	logOnce    sync.Once
}

// New creates a Store rooted at dir. The directory is created if missing;
// failure to create it puts the store in memory-only mode immediately.
func New(dir string) *Store {
	s := &Store{
		dir:    dir,
		traces: make(map[string]*models.Trace),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.degrade(err)
	}
	return s
}

// degrade flips the store to memory-only mode, logging on first failure.
func (s *Store) degrade(err error) {
	s.memoryOnly.Store(true)
	s.logOnce.Do(func() {
		slog.Warn("Trace disk persistence failed, continuing memory-only",
			"dir", s.dir, "error", err)
	})
}

// Save stores a trace in memory and best-effort on disk.
func (s *Store) Save(t *models.Trace) {
	s.mu.Lock()
	s.traces[t.TraceID] = cloneTrace(t)
	s.mu.Unlock()

	s.writeFile(t)
}

// Get returns the trace with the given id, hydrating memory from disk on
// a miss. Returns nil when the trace is unknown.
func (s *Store) Get(id string) *models.Trace {
	s.mu.RLock()
	t, ok := s.traces[id]
	s.mu.RUnlock()
	if ok {
		return cloneTrace(t)
	}

	loaded := s.readFile(id)
	if loaded == nil {
		return nil
	}

	s.mu.Lock()
	// Another goroutine may have hydrated meanwhile; memory wins.
	if existing, ok := s.traces[id]; ok {
		loaded = existing
	} else {
		s.traces[id] = loaded
	}
	s.mu.Unlock()
	return cloneTrace(loaded)
}

// Update applies a patch to a trace and persists the result. Returns the
// updated trace, or nil when the id is unknown. Moving a terminal trace
// back to a non-terminal status is rejected.
func (s *Store) Update(id string, patch models.TracePatch) (*models.Trace, error) {
	s.mu.Lock()
	t, ok := s.traces[id]
	if !ok {
		s.mu.Unlock()
		if t = s.readFile(id); t == nil {
			return nil, nil
		}
		s.mu.Lock()
		if existing, exists := s.traces[id]; exists {
			t = existing
		} else {
			s.traces[id] = t
		}
	}

	if patch.Status != nil && t.Status.IsTerminal() && !patch.Status.IsTerminal() {
		s.mu.Unlock()
		return nil, ErrTerminalTransition
	}

	applyPatch(t, patch)
	updated := cloneTrace(t)
	s.mu.Unlock()

	s.writeFile(updated)
	return updated, nil
}

// ListResult is the paginated output of List.
type ListResult struct {
	Traces []*models.Trace `json:"traces"`
	Total  int             `json:"total"`
}

// List merges memory and disk (memory wins on id collision), sorts by
// timestamp descending, and paginates. Corrupt disk entries are skipped.
func (s *Store) List(limit, offset int) *ListResult {
	merged := make(map[string]*models.Trace)

	if !s.memoryOnly.Load() {
		for _, t := range s.readAll() {
			merged[t.TraceID] = t
		}
	}

	s.mu.RLock()
	for id, t := range s.traces {
		merged[id] = cloneTrace(t)
	}
	s.mu.RUnlock()

	all := make([]*models.Trace, 0, len(merged))
	for _, t := range merged {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	total := len(all)
	if offset >= total {
		return &ListResult{Traces: []*models.Trace{}, Total: total}
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return &ListResult{Traces: all[offset:end], Total: total}
}

// Delete removes a trace from memory and disk. Returns whether anything
// was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, existed := s.traces[id]
	delete(s.traces, id)
	s.mu.Unlock()

	if !s.memoryOnly.Load() {
		if err := os.Remove(s.path(id)); err == nil {
			existed = true
		}
	}
	return existed
}

// path returns the on-disk location for a trace id.
func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// writeFile persists one trace to disk with 2-space indentation.
func (s *Store) writeFile(t *models.Trace) {
	if s.memoryOnly.Load() {
		return
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		s.degrade(err)
		return
	}
	if err := os.WriteFile(s.path(t.TraceID), data, 0o644); err != nil {
		s.degrade(err)
	}
}

// readFile loads one trace from disk. Corrupt or missing files yield nil.
func (s *Store) readFile(id string) *models.Trace {
	if s.memoryOnly.Load() || strings.ContainsAny(id, `/\`) {
		return nil
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil
	}
	var t models.Trace
	if err := json.Unmarshal(data, &t); err != nil {
		slog.Warn("Skipping corrupt trace file", "trace_id", id, "error", err)
		return nil
	}
	return &t
}

// readAll loads every readable trace file from disk.
func (s *Store) readAll() []*models.Trace {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var out []*models.Trace
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if t := s.readFile(strings.TrimSuffix(name, ".json")); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// applyPatch copies non-nil patch fields onto the trace.
func applyPatch(t *models.Trace, p models.TracePatch) {
	if p.Iterations != nil {
		t.Iterations = *p.Iterations
	}
	if p.RedTeamFlags != nil {
		t.RedTeamFlags = *p.RedTeamFlags
	}
	if p.FinalPosteriorWeights != nil {
		t.FinalPosteriorWeights = *p.FinalPosteriorWeights
	}
	if p.SynthesisResult != nil {
		t.SynthesisResult = *p.SynthesisResult
	}
	if p.ActualCost != nil {
		t.ActualCost = *p.ActualCost
	}
	if p.DurationMs != nil {
		t.DurationMs = *p.DurationMs
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
}

// cloneTrace deep-copies a trace so callers never alias store-owned state.
// Empty slices and maps stay empty rather than becoming nil: the JSON form
// of a clone must match the original exactly ([] and {} never turn into
// null).
func cloneTrace(t *models.Trace) *models.Trace {
	c := *t
	if t.Iterations != nil {
		c.Iterations = make([]models.Iteration, len(t.Iterations))
		copy(c.Iterations, t.Iterations)
		for i, it := range c.Iterations {
			if it.AgentResponses != nil {
				c.Iterations[i].AgentResponses = make([]models.AgentResponse, len(it.AgentResponses))
				copy(c.Iterations[i].AgentResponses, it.AgentResponses)
			}
		}
	}
	if t.RedTeamFlags != nil {
		c.RedTeamFlags = make([]models.RedTeamFlag, len(t.RedTeamFlags))
		copy(c.RedTeamFlags, t.RedTeamFlags)
	}
	c.BranchScores = copyMap(t.BranchScores)
	c.FinalPosteriorWeights = copyMap(t.FinalPosteriorWeights)
	return &c
}

func copyMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String implements fmt.Stringer for diagnostics.
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("tracestore(dir=%s, in_memory=%d, memory_only=%v)",
		s.dir, len(s.traces), s.memoryOnly.Load())
}
