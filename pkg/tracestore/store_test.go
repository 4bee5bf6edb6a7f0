package tracestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-ai/hivemind/pkg/models"
)

func newTestTrace(id string, ts time.Time) *models.Trace {
	return &models.Trace{
		TraceID:               id,
		Timestamp:             ts,
		Mission:               "test mission",
		Iterations:            []models.Iteration{},
		BranchScores:          map[string]float64{},
		RedTeamFlags:          []models.RedTeamFlag{},
		FinalPosteriorWeights: map[string]float64{},
		Status:                models.TraceStatusRunning,
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	id := uuid.New().String()
	orig := newTestTrace(id, time.Now().UTC().Truncate(time.Millisecond))

	s.Save(orig)
	got := s.Get(id)
	require.NotNil(t, got)

	origJSON, err := json.Marshal(orig)
	require.NoError(t, err)
	gotJSON, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(origJSON), string(gotJSON))
}

func TestEmptyCollectionsStayEmptyNotNull(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	id := uuid.New().String()
	s.Save(newTestTrace(id, time.Now()))

	got := s.Get(id)
	require.NotNil(t, got)
	assert.NotNil(t, got.Iterations)
	assert.NotNil(t, got.RedTeamFlags)

	gotJSON, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(gotJSON), `"iterations":[]`)
	assert.Contains(t, string(gotJSON), `"redTeamFlags":[]`)
	assert.NotContains(t, string(gotJSON), "null")

	// An update that touches neither slice must not turn them into null,
	// in the returned trace or in the file on disk.
	cost := 0.05
	updated, err := s.Update(id, models.TracePatch{ActualCost: &cost})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.NotNil(t, updated.Iterations)
	assert.NotNil(t, updated.RedTeamFlags)

	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "null")
}

func TestGetUnknownReturnsNil(t *testing.T) {
	s := New(t.TempDir())
	assert.Nil(t, s.Get(uuid.New().String()))
}

func TestGetHydratesFromDiskOnMiss(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New().String()

	first := New(dir)
	first.Save(newTestTrace(id, time.Now()))

	// A fresh store over the same directory has an empty memory tier.
	second := New(dir)
	got := second.Get(id)
	require.NotNil(t, got)
	assert.Equal(t, id, got.TraceID)
}

func TestDiskFileIsIndentedJSON(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New().String()
	s := New(dir)
	s.Save(newTestTrace(id, time.Now()))

	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"traceId\"")
}

func TestUpdateAppliesPatch(t *testing.T) {
	s := New(t.TempDir())
	id := uuid.New().String()
	s.Save(newTestTrace(id, time.Now()))

	status := models.TraceStatusCompleted
	synthesis := "final answer"
	cost := 0.12
	updated, err := s.Update(id, models.TracePatch{
		Status:          &status,
		SynthesisResult: &synthesis,
		ActualCost:      &cost,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, models.TraceStatusCompleted, updated.Status)
	assert.Equal(t, "final answer", updated.SynthesisResult)
	assert.Equal(t, 0.12, updated.ActualCost)

	// Unpatched fields survive.
	assert.Equal(t, "test mission", updated.Mission)
}

func TestUpdateUnknownReturnsNil(t *testing.T) {
	s := New(t.TempDir())
	status := models.TraceStatusFailed
	got, err := s.Update(uuid.New().String(), models.TracePatch{Status: &status})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateRejectsTerminalRevert(t *testing.T) {
	s := New(t.TempDir())
	id := uuid.New().String()
	tr := newTestTrace(id, time.Now())
	tr.Status = models.TraceStatusCompleted
	s.Save(tr)

	running := models.TraceStatusRunning
	_, err := s.Update(id, models.TracePatch{Status: &running})
	assert.ErrorIs(t, err, ErrTerminalTransition)
}

func TestListSortsByTimestampDescending(t *testing.T) {
	s := New(t.TempDir())
	base := time.Now()
	for i := 0; i < 5; i++ {
		s.Save(newTestTrace(uuid.New().String(), base.Add(time.Duration(i)*time.Minute)))
	}

	res := s.List(10, 0)
	require.Equal(t, 5, res.Total)
	require.Len(t, res.Traces, 5)
	for i := 1; i < len(res.Traces); i++ {
		assert.True(t, !res.Traces[i-1].Timestamp.Before(res.Traces[i].Timestamp))
	}
}

func TestListPagination(t *testing.T) {
	s := New(t.TempDir())
	for i := 0; i < 7; i++ {
		s.Save(newTestTrace(uuid.New().String(), time.Now().Add(time.Duration(i)*time.Second)))
	}

	page1 := s.List(3, 0)
	page2 := s.List(3, 3)
	page3 := s.List(3, 6)
	beyond := s.List(3, 100)

	assert.Len(t, page1.Traces, 3)
	assert.Len(t, page2.Traces, 3)
	assert.Len(t, page3.Traces, 1)
	assert.Empty(t, beyond.Traces)
	assert.Equal(t, 7, beyond.Total)
}

func TestListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	s.Save(newTestTrace(uuid.New().String(), time.Now()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("{not json"), 0o644))

	fresh := New(dir)
	res := fresh.List(10, 0)
	assert.Equal(t, 1, res.Total)
}

func TestDelete(t *testing.T) {
	s := New(t.TempDir())
	id := uuid.New().String()
	s.Save(newTestTrace(id, time.Now()))

	assert.True(t, s.Delete(id))
	assert.Nil(t, s.Get(id))
	assert.False(t, s.Delete(id))
}

func TestMemoryOnlyDegradation(t *testing.T) {
	// Point the store at a path occupied by a regular file so directory
	// creation fails and the store degrades to memory-only.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := New(blocker)
	id := uuid.New().String()
	s.Save(newTestTrace(id, time.Now()))

	// Memory tier still serves the trace; later operations stay calm.
	require.NotNil(t, s.Get(id))
	s.Save(newTestTrace(uuid.New().String(), time.Now()))
	assert.Equal(t, 2, s.List(10, 0).Total)
}

func TestConcurrentSaveUpdateList(t *testing.T) {
	s := New(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.New().String()
			s.Save(newTestTrace(id, time.Now()))
			status := models.TraceStatusCompleted
			_, _ = s.Update(id, models.TracePatch{Status: &status})
			s.List(50, 0)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.List(100, 0).Total)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(t.TempDir())
	id := uuid.New().String()
	s.Save(newTestTrace(id, time.Now()))

	first := s.Get(id)
	first.Mission = "mutated"
	first.BranchScores["x"] = 1

	second := s.Get(id)
	assert.Equal(t, "test mission", second.Mission)
	assert.Empty(t, second.BranchScores)
}
