package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/reverba/api/internal/model"
)

// memStore is an in-memory Store. InTx snapshots the maps and restores them
// when fn fails, which is enough to observe all-or-nothing behaviour.
type memStore struct {
	mu      *sync.Mutex
	words   map[string]model.Word
	batches map[string]model.DailyTaskBatch // key: user|date

	failCreateBatch error
	failRebalance   error
	failUpdateWord  error
	createCalls     int
}

func newMemStore() *memStore {
	return &memStore{
		mu:      &sync.Mutex{},
		words:   make(map[string]model.Word),
		batches: make(map[string]model.DailyTaskBatch),
	}
}

func batchKey(userID, date string) string { return userID + "|" + date }

func (s *memStore) addWord(w model.Word) model.Word {
	if w.State == "" {
		w.State = model.WordStateActive
	}
	if w.Version == 0 {
		w.Version = 1
	}
	if w.NormalizedWord == "" {
		w.NormalizedWord = model.NormalizeWord(w.Word)
	}
	s.words[w.ID] = w
	return w
}

func (s *memStore) word(id string) model.Word { return s.words[id] }

func (s *memStore) ListActiveWords(_ context.Context, userID string) ([]model.Word, error) {
	var out []model.Word
	for _, w := range s.words {
		if w.UserID == userID && w.State == model.WordStateActive {
			out = append(out, w)
		}
	}
	// Map iteration order is random; the selector must not depend on it, but
	// shuffle-free input keeps failures readable.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetWord(_ context.Context, wordID string) (*model.Word, error) {
	w, ok := s.words[wordID]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (s *memStore) UpdateWord(_ context.Context, wordID string, expectedVersion int64, patch model.WordPatch) (*model.Word, error) {
	if s.failUpdateWord != nil {
		return nil, s.failUpdateWord
	}
	w, ok := s.words[wordID]
	if !ok {
		return nil, ErrNotFound
	}
	if w.Version != expectedVersion {
		return nil, fmt.Errorf("%w: version mismatch", ErrInvalidState)
	}
	patch.Apply(&w)
	w.Version++
	s.words[wordID] = w
	return &w, nil
}

func (s *memStore) RebalanceWords(_ context.Context, wordIDs []string) (int64, error) {
	if s.failRebalance != nil {
		return 0, s.failRebalance
	}
	var n int64
	for _, id := range wordIDs {
		w, ok := s.words[id]
		if !ok || w.State != model.WordStateActive || w.Priority >= model.MaxPriority {
			continue
		}
		w.Priority = RebalancedPriority(w.Priority)
		w.Version++
		s.words[id] = w
		n++
	}
	return n, nil
}

func (s *memStore) GetBatch(_ context.Context, userID, date string) (*model.DailyTaskBatch, error) {
	b, ok := s.batches[batchKey(userID, date)]
	if !ok {
		return nil, ErrNotFound
	}
	b.Tasks = append([]model.TaskItem(nil), b.Tasks...)
	return &b, nil
}

func (s *memStore) CreateBatch(_ context.Context, batch *model.DailyTaskBatch) error {
	s.createCalls++
	if s.failCreateBatch != nil {
		return s.failCreateBatch
	}
	key := batchKey(batch.UserID, batch.Date)
	if _, ok := s.batches[key]; ok {
		return fmt.Errorf("%w: duplicate batch", ErrInvalidState)
	}
	if batch.ID == "" {
		batch.ID = "batch-" + batch.UserID + "-" + batch.Date
	}
	for i := range batch.Tasks {
		batch.Tasks[i].BatchID = batch.ID
	}
	stored := *batch
	stored.Tasks = append([]model.TaskItem(nil), batch.Tasks...)
	s.batches[key] = stored
	return nil
}

func (s *memStore) GetTask(_ context.Context, taskID string) (*model.TaskItem, *model.DailyTaskBatch, error) {
	for _, b := range s.batches {
		for _, t := range b.Tasks {
			if t.TaskID == taskID {
				b := b
				t := t
				return &t, &b, nil
			}
		}
	}
	return nil, nil, ErrNotFound
}

func (s *memStore) UpdateTask(_ context.Context, taskID string, from model.TaskStatus, patch model.TaskPatch) error {
	if !from.CanTransitionTo(patch.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, patch.Status)
	}
	for key, b := range s.batches {
		for i, t := range b.Tasks {
			if t.TaskID != taskID {
				continue
			}
			if t.Status != from {
				return fmt.Errorf("%w: task is %s", ErrInvalidState, t.Status)
			}
			tasks := append([]model.TaskItem(nil), b.Tasks...)
			tasks[i].Status = patch.Status
			tasks[i].Result = patch.Result
			tasks[i].CompletedAt = patch.CompletedAt
			b.Tasks = tasks
			s.batches[key] = b
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) InTx(_ context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	words := make(map[string]model.Word, len(s.words))
	for k, v := range s.words {
		words[k] = v
	}
	batches := make(map[string]model.DailyTaskBatch, len(s.batches))
	for k, v := range s.batches {
		batches[k] = v
	}

	if err := fn(s); err != nil {
		s.words = words
		s.batches = batches
		return err
	}
	return nil
}

// fakeMCQ returns a valid question per word, failing for listed words.
type fakeMCQ struct {
	mu       sync.Mutex
	calls    map[string]int
	failFor  map[string]int // word id -> number of leading failures
	malform  map[string]bool
	blockFor time.Duration
}

func newFakeMCQ() *fakeMCQ {
	return &fakeMCQ{calls: map[string]int{}, failFor: map[string]int{}, malform: map[string]bool{}}
}

func (f *fakeMCQ) GenerateMCQ(ctx context.Context, w model.Word) (*model.MCQ, error) {
	f.mu.Lock()
	f.calls[w.ID]++
	call := f.calls[w.ID]
	fails := f.failFor[w.ID]
	malformed := f.malform[w.ID]
	block := f.blockFor
	f.mu.Unlock()

	if block > 0 {
		select {
		case <-time.After(block):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if call <= fails {
		return nil, fmt.Errorf("llm unavailable")
	}
	if malformed {
		return &model.MCQ{Question: "", Options: []string{"a", "b"}, CorrectOption: 1}, nil
	}
	return &model.MCQ{
		Question:      "Which sentence uses " + w.Word + " correctly?",
		Options:       []string{"one", "two", "three", "four"},
		CorrectOption: 2,
		OptionReasons: []string{"r1", "r2", "r3", "r4"},
	}, nil
}

func (f *fakeMCQ) callCount(wordID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[wordID]
}

func (f *fakeMCQ) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// memDrafts is an in-memory DraftCache.
type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]model.MCQ
}

func newMemDrafts() *memDrafts { return &memDrafts{drafts: map[string]model.MCQ{}} }

func (d *memDrafts) GetMCQDraft(_ context.Context, userID, date, wordID string) (*model.MCQ, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.drafts[userID+date+wordID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (d *memDrafts) PutMCQDraft(_ context.Context, userID, date, wordID string, mcq *model.MCQ) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drafts[userID+date+wordID] = *mcq
	return nil
}

// memLocker is an in-memory Locker.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}
