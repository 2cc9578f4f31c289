package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/task"
)

type fakeStore struct {
	mu      sync.Mutex
	users   []string
	listErr error
	runs    []model.CronRun
	stats   []model.CronRunStats
}

func (f *fakeStore) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	return f.users, f.listErr
}

func (f *fakeStore) RecordCronRun(ctx context.Context, run *model.CronRun, stats model.CronRunStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	run.Stats = b
	f.runs = append(f.runs, *run)
	f.stats = append(f.stats, stats)
	return nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   map[string]string
	fail    map[string]bool
	partial map[string]bool
	active  int
	peak    int
	delay   time.Duration
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		calls:   map[string]string{},
		fail:    map[string]bool{},
		partial: map[string]bool{},
	}
}

func (f *fakeGenerator) GenerateForUser(ctx context.Context, userID, date string) (*task.GenerationReport, error) {
	f.mu.Lock()
	f.calls[userID] = date
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if f.fail[userID] {
		return nil, errors.New("database unavailable")
	}
	report := &task.GenerationReport{
		Batch: &model.DailyTaskBatch{
			UserID: userID,
			Date:   date,
			Tasks:  []model.TaskItem{{TaskID: userID + "-t1"}, {TaskID: userID + "-t2"}},
		},
		Created:    true,
		Rebalanced: 3,
	}
	if f.partial[userID] {
		report.Failures = []*task.GenerationError{{WordID: "w7", TaskType: string(model.TaskTypeMCQ), Attempts: 2, Err: errors.New("timeout")}}
	}
	return report, nil
}

func newTestScheduler(store Store, gen Generator, concurrency int) *DailyScheduler {
	loc := time.FixedZone("KST", 9*60*60)
	return NewDailyScheduler(store, gen, Config{Location: loc, Hour: 4, Minute: 30, Concurrency: concurrency}, nil)
}

func TestNextRun(t *testing.T) {
	s := newTestScheduler(&fakeStore{}, newFakeGenerator(), 1)
	loc := s.cfg.Location

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before run time", time.Date(2026, 3, 10, 1, 0, 0, 0, loc), time.Date(2026, 3, 10, 4, 30, 0, 0, loc)},
		{"exactly at run time", time.Date(2026, 3, 10, 4, 30, 0, 0, loc), time.Date(2026, 3, 11, 4, 30, 0, 0, loc)},
		{"after run time", time.Date(2026, 3, 10, 23, 0, 0, 0, loc), time.Date(2026, 3, 11, 4, 30, 0, 0, loc)},
		{"month rollover", time.Date(2026, 3, 31, 12, 0, 0, 0, loc), time.Date(2026, 4, 1, 4, 30, 0, 0, loc)},
		// 20:00 UTC on the 9th is already 05:00 on the 10th in KST.
		{"other input zone", time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 4, 30, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(s.NextRun(tt.now)), "got %s", s.NextRun(tt.now))
		})
	}
}

func TestToday(t *testing.T) {
	s := newTestScheduler(&fakeStore{}, newFakeGenerator(), 1)
	s.now = func() time.Time { return time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC) }
	assert.Equal(t, "2026-03-10", s.Today())
}

func TestRunOnceSuccess(t *testing.T) {
	store := &fakeStore{users: []string{"a", "b", "c"}}
	gen := newFakeGenerator()
	s := newTestScheduler(store, gen, 2)

	run, err := s.RunOnce(context.Background(), "2026-03-10")
	require.NoError(t, err)

	assert.Equal(t, model.CronRunSuccess, run.Status)
	assert.Equal(t, map[string]string{"a": "2026-03-10", "b": "2026-03-10", "c": "2026-03-10"}, gen.calls)

	require.Len(t, store.stats, 1)
	stats := store.stats[0]
	assert.Equal(t, 3, stats.UsersProcessed)
	assert.Equal(t, 3, stats.BatchesCreated)
	assert.Equal(t, 6, stats.TasksCreated)
	assert.Equal(t, int64(9), stats.WordsRebalanced)
	assert.Empty(t, stats.Errors)
	assert.JSONEq(t, `{"usersProcessed":3,"batchesCreated":3,"tasksCreated":6,"wordsRebalanced":9,"warnings":0,"errors":[]}`,
		string(store.runs[0].Stats))
}

func TestRunOnceStatuses(t *testing.T) {
	t.Run("one user fails", func(t *testing.T) {
		store := &fakeStore{users: []string{"a", "b"}}
		gen := newFakeGenerator()
		gen.fail["b"] = true

		run, err := newTestScheduler(store, gen, 2).RunOnce(context.Background(), "2026-03-10")
		require.NoError(t, err)
		assert.Equal(t, model.CronRunPartial, run.Status)
		assert.Len(t, store.stats[0].Errors, 1)
		assert.Contains(t, store.stats[0].Errors[0], "user b")
		assert.Equal(t, 1, store.stats[0].BatchesCreated)
	})

	t.Run("word generation failures", func(t *testing.T) {
		store := &fakeStore{users: []string{"a"}}
		gen := newFakeGenerator()
		gen.partial["a"] = true

		run, err := newTestScheduler(store, gen, 1).RunOnce(context.Background(), "2026-03-10")
		require.NoError(t, err)
		assert.Equal(t, model.CronRunPartial, run.Status)
		assert.Equal(t, 1, store.stats[0].Warnings)
	})

	t.Run("every user fails", func(t *testing.T) {
		store := &fakeStore{users: []string{"a", "b"}}
		gen := newFakeGenerator()
		gen.fail["a"] = true
		gen.fail["b"] = true

		run, err := newTestScheduler(store, gen, 2).RunOnce(context.Background(), "2026-03-10")
		require.NoError(t, err)
		assert.Equal(t, model.CronRunFailed, run.Status)
	})

	t.Run("no users", func(t *testing.T) {
		store := &fakeStore{}
		run, err := newTestScheduler(store, newFakeGenerator(), 2).RunOnce(context.Background(), "2026-03-10")
		require.NoError(t, err)
		assert.Equal(t, model.CronRunSuccess, run.Status)
		assert.Len(t, store.runs, 1)
	})

	t.Run("user listing fails", func(t *testing.T) {
		store := &fakeStore{listErr: errors.New("connection refused")}
		run, err := newTestScheduler(store, newFakeGenerator(), 2).RunOnce(context.Background(), "2026-03-10")
		require.Error(t, err)
		assert.Equal(t, model.CronRunFailed, run.Status)
		require.Len(t, store.runs, 1)
		assert.Equal(t, []string{"connection refused"}, store.stats[0].Errors)
	})
}

func TestRunOnceBoundsConcurrency(t *testing.T) {
	store := &fakeStore{users: []string{"a", "b", "c", "d", "e", "f"}}
	gen := newFakeGenerator()
	gen.delay = 20 * time.Millisecond

	_, err := newTestScheduler(store, gen, 2).RunOnce(context.Background(), "2026-03-10")
	require.NoError(t, err)

	assert.Len(t, gen.calls, 6)
	assert.LessOrEqual(t, gen.peak, 2)
}

func TestGetStatus(t *testing.T) {
	store := &fakeStore{users: []string{"a"}}
	s := newTestScheduler(store, newFakeGenerator(), 1)

	status := s.GetStatus()
	assert.Equal(t, false, status["running"])
	assert.Equal(t, "04:30", status["runAt"])
	assert.NotContains(t, status, "lastRun")

	_, err := s.RunOnce(context.Background(), "2026-03-10")
	require.NoError(t, err)

	last, ok := s.GetStatus()["lastRun"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "2026-03-10", last["date"])
	assert.Equal(t, model.CronRunSuccess, last["status"])
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(&fakeStore{}, newFakeGenerator(), 1)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		st := s.GetStatus()
		return st["running"] == true && st["nextRun"] != nil
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, false, s.GetStatus()["running"])
}

func TestRestartAfterStop(t *testing.T) {
	s := newTestScheduler(&fakeStore{}, newFakeGenerator(), 1)

	for i := 0; i < 2; i++ {
		done := make(chan struct{})
		go func() {
			s.Start(context.Background())
			close(done)
		}()
		require.Eventually(t, func() bool { return s.GetStatus()["running"] == true }, time.Second, 5*time.Millisecond)

		// Start must block until stopped, also on the second round.
		select {
		case <-done:
			t.Fatalf("round %d: scheduler returned before Stop", i)
		case <-time.After(20 * time.Millisecond):
		}

		s.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("round %d: scheduler did not stop", i)
		}
	}
}

func TestStartEndsOnContextCancel(t *testing.T) {
	s := newTestScheduler(&fakeStore{}, newFakeGenerator(), 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return s.GetStatus()["running"] == true }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, false, s.GetStatus()["running"])
}
