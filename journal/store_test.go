package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()

	return map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewInMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })

			return s
		},
	}
}

func TestStore_AppendAndSummarize(t *testing.T) {
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			entries := []Entry{
				{ID: "1", RunID: "run-1", Kind: KindAgentStart, Agent: "Triage", Status: StatusRunning, Time: base},
				{ID: "2", RunID: "run-1", Kind: KindModelCall, Agent: "Triage", Detail: "gpt-4o", Status: StatusCompleted, Duration: 42 * time.Millisecond, Time: base.Add(time.Second)},
				{ID: "3", RunID: "run-1", Kind: KindHandoff, Agent: "Triage", Detail: "Math", Status: StatusCompleted, Time: base.Add(2 * time.Second)},
				{ID: "4", RunID: "run-1", Kind: KindAgentEnd, Agent: "Math", Detail: "Math", Status: StatusCompleted, Time: base.Add(3 * time.Second)},
				{ID: "5", RunID: "run-1", Kind: KindAgentEnd, Agent: "Triage", Detail: "Math", Status: StatusCompleted, Time: base.Add(4 * time.Second)},
			}

			for _, e := range entries {
				require.NoError(t, s.Append(ctx, e))
			}

			run, err := s.Run(ctx, "run-1")
			require.NoError(t, err)

			assert.Equal(t, "run-1", run.ID)
			assert.Equal(t, "Triage", run.Agent)
			assert.Equal(t, "Math", run.FinalAgent)
			assert.Equal(t, StatusCompleted, run.Status)
			assert.Equal(t, 5, run.Entries)
			assert.True(t, base.Equal(run.StartedAt))
			assert.True(t, base.Add(4*time.Second).Equal(run.UpdatedAt))

			got, err := s.Entries(ctx, "run-1")
			require.NoError(t, err)
			require.Len(t, got, 5)

			for i, e := range got {
				assert.Equal(t, i+1, e.Seq)
				assert.Equal(t, entries[i].ID, e.ID)
				assert.Equal(t, entries[i].Kind, e.Kind)
			}

			assert.Equal(t, "gpt-4o", got[1].Detail)
			assert.Equal(t, 42*time.Millisecond, got[1].Duration)
		})
	}
}

func TestStore_FailedRun(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			now := time.Now()

			require.NoError(t, s.Append(ctx, Entry{ID: "a", RunID: "r", Kind: KindAgentStart, Agent: "Writer", Time: now}))
			require.NoError(t, s.Append(ctx, Entry{ID: "b", RunID: "r", Kind: KindAgentEnd, Agent: "Writer", Status: StatusTripped, Error: "guardrail tripped", Time: now}))

			run, err := s.Run(ctx, "r")
			require.NoError(t, err)
			assert.Equal(t, StatusTripped, run.Status)
			assert.Equal(t, "guardrail tripped", run.Error)
			assert.Empty(t, run.FinalAgent)
		})
	}
}

func TestStore_BranchFailureIsNotMasked(t *testing.T) {
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			entries := []Entry{
				{ID: "1", RunID: "run-f", Branch: "fanout.0.Writer", Kind: KindAgentStart, Agent: "Writer", Status: StatusRunning, Time: base},
				{ID: "2", RunID: "run-f", Branch: "fanout.1.Critic", Kind: KindAgentStart, Agent: "Critic", Status: StatusRunning, Time: base},
				{ID: "3", RunID: "run-f", Branch: "fanout.0.Writer", Kind: KindAgentEnd, Agent: "Writer", Status: StatusFailed, Error: "boom", Time: base.Add(time.Second)},
				{ID: "4", RunID: "run-f", Branch: "fanout.1.Critic", Kind: KindAgentEnd, Agent: "Critic", Detail: "Critic", Status: StatusCompleted, Time: base.Add(2 * time.Second)},
			}

			for _, e := range entries {
				require.NoError(t, s.Append(ctx, e))
			}

			run, err := s.Run(ctx, "run-f")
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, run.Status)
			assert.Equal(t, "boom", run.Error)
			assert.Equal(t, "fanout.0.Writer", run.FailedBranch)
			assert.Equal(t, 4, run.Entries)

			// A later top-level run in the same context settles the outcome.
			require.NoError(t, s.Append(ctx, Entry{ID: "5", RunID: "run-f", Kind: KindAgentEnd, Agent: "Editor", Detail: "Editor", Status: StatusCompleted, Time: base.Add(3 * time.Second)}))

			run, err = s.Run(ctx, "run-f")
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, run.Status)
			assert.Empty(t, run.Error)
			assert.Empty(t, run.FailedBranch)
		})
	}
}

func TestStore_TopLevelTripThenResume(t *testing.T) {
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			require.NoError(t, s.Append(ctx, Entry{ID: "1", RunID: "run-c", Kind: KindAgentEnd, Agent: "Triage", Status: StatusTripped, Error: "clarity", Time: base}))
			require.NoError(t, s.Append(ctx, Entry{ID: "2", RunID: "run-c", Branch: "fanout.0.Writer", Kind: KindAgentEnd, Agent: "Writer", Detail: "Writer", Status: StatusCompleted, Time: base.Add(time.Second)}))

			run, err := s.Run(ctx, "run-c")
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, run.Status)
			assert.Equal(t, "Writer", run.FinalAgent)
		})
	}
}

func TestStore_UnknownRun(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)

			_, err := s.Run(context.Background(), "missing")
			require.ErrorIs(t, err, ErrRunNotFound)

			_, err = s.Entries(context.Background(), "missing")
			require.ErrorIs(t, err, ErrRunNotFound)

			require.Error(t, s.Append(context.Background(), Entry{ID: "x"}))
		})
	}
}

func TestStore_RunsNewestFirst(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			for i := range 3 {
				require.NoError(t, s.Append(ctx, Entry{
					ID:    fmt.Sprintf("e%d", i),
					RunID: fmt.Sprintf("run-%d", i),
					Kind:  KindAgentStart,
					Agent: "A",
					Time:  base.Add(time.Duration(i) * time.Minute),
				}))
			}

			runs, err := s.Runs(ctx, 0)
			require.NoError(t, err)
			require.Len(t, runs, 3)
			assert.Equal(t, "run-2", runs[0].ID)
			assert.Equal(t, "run-0", runs[2].ID)

			runs, err = s.Runs(ctx, 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "run-1", runs[1].ID)
		})
	}
}

func TestStore_ConcurrentAppend(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			var wg sync.WaitGroup

			for i := range 20 {
				wg.Add(1)

				go func() {
					defer wg.Done()

					assert.NoError(t, s.Append(ctx, Entry{
						ID:    fmt.Sprintf("e%d", i),
						RunID: "shared",
						Kind:  KindModelCall,
						Agent: "A",
						Time:  time.Now(),
					}))
				}()
			}

			wg.Wait()

			entries, err := s.Entries(ctx, "shared")
			require.NoError(t, err)
			require.Len(t, entries, 20)

			for i, e := range entries {
				assert.Equal(t, i+1, e.Seq)
			}
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), Entry{ID: "1", RunID: "r", Kind: KindAgentStart, Agent: "A", Time: time.Now()}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)

	defer s.Close()

	run, err := s.Run(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Entries)
}
