package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/backend/internal/models"
)

type fakeDirectory struct {
	tenants []models.TenantBinding
	err     error
}

func (d *fakeDirectory) ListActive(context.Context) ([]models.TenantBinding, error) {
	return d.tenants, d.err
}

type fakeItem struct {
	scheduledTime time.Time
	recurrence    models.Recurrence
	status        models.ProcessingStatus
	promoteErr    error
	claims        int
}

// fakeStore keeps one tenant's scheduled tasks in memory with the same
// claim-if-still-pending contract as the real store.
type fakeStore struct {
	mu     sync.Mutex
	items  map[uuid.UUID]*fakeItem
	order  []uuid.UUID
	dueErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[uuid.UUID]*fakeItem)}
}

func (s *fakeStore) add(scheduledTime time.Time, recurrence models.Recurrence, promoteErr error) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.items[id] = &fakeItem{scheduledTime: scheduledTime, recurrence: recurrence, promoteErr: promoteErr}
	s.order = append(s.order, id)
	return id
}

func (s *fakeStore) DueScheduledTasks(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	var due []uuid.UUID
	for _, id := range s.order {
		it := s.items[id]
		if it.status == models.ProcessingPending && !it.scheduledTime.After(now) {
			due = append(due, id)
		}
	}
	return due, nil
}

func (s *fakeStore) Promote(_ context.Context, id uuid.UUID, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.status != models.ProcessingPending {
		return false, nil
	}
	if it.promoteErr != nil {
		return false, it.promoteErr
	}
	it.status = models.ProcessingProcessed
	it.claims++
	if next := NextOccurrence(it.scheduledTime, it.recurrence); next != nil {
		nid := uuid.New()
		s.items[nid] = &fakeItem{scheduledTime: *next, recurrence: it.recurrence}
		s.order = append(s.order, nid)
	}
	return true, nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, reason string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.status != models.ProcessingPending {
		return false, nil
	}
	it.status = models.ProcessingFailed
	return true, nil
}

func (s *fakeStore) status(id uuid.UUID) models.ProcessingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id].status
}

func (s *fakeStore) totalClaims() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		n += it.claims
	}
	return n
}

func (s *fakeStore) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if it.status == models.ProcessingPending {
			n++
		}
	}
	return n
}

type fakeStores struct {
	mu       sync.Mutex
	byTenant map[uuid.UUID]*fakeStore
}

func newFakeStores() *fakeStores {
	return &fakeStores{byTenant: make(map[uuid.UUID]*fakeStore)}
}

func (s *fakeStores) ForTenant(b models.TenantBinding) TenantStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byTenant[b.TenantID]
	if !ok {
		st = newFakeStore()
		s.byTenant[b.TenantID] = st
	}
	return st
}

func binding(name string) models.TenantBinding {
	id := uuid.New()
	return models.TenantBinding{TenantID: id, Name: name, Schema: "tenant_" + name, Active: true}
}

func TestRunOncePromotesDueTasks(t *testing.T) {
	acme := binding("acme")
	dir := &fakeDirectory{tenants: []models.TenantBinding{acme}}
	stores := newFakeStores()
	store := stores.ForTenant(acme).(*fakeStore)

	past := time.Now().Add(-time.Hour)
	due := store.add(past, models.RecurrenceOnce, nil)
	future := store.add(time.Now().Add(time.Hour), models.RecurrenceOnce, nil)

	engine := NewEngine(dir, stores, 2, nil)
	summary, err := engine.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 0 || summary.TenantErrors != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if store.status(due) != models.ProcessingProcessed {
		t.Error("due task not promoted")
	}
	if store.status(future) != models.ProcessingPending {
		t.Error("future task must stay pending")
	}
}

func TestRunOnceAtMostOnceUnderConcurrentRuns(t *testing.T) {
	acme := binding("acme")
	dir := &fakeDirectory{tenants: []models.TenantBinding{acme}}
	stores := newFakeStores()
	store := stores.ForTenant(acme).(*fakeStore)

	const items = 50
	past := time.Now().Add(-time.Minute)
	for i := 0; i < items; i++ {
		store.add(past, models.RecurrenceOnce, nil)
	}

	engine := NewEngine(dir, stores, 4, nil)
	var wg sync.WaitGroup
	total := make([]int, 8)
	for i := range total {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summary, err := engine.RunOnce(context.Background())
			if err != nil {
				t.Errorf("RunOnce: %v", err)
				return
			}
			total[i] = summary.Processed
		}(i)
	}
	wg.Wait()

	if got := store.totalClaims(); got != items {
		t.Fatalf("claims = %d, want exactly %d", got, items)
	}
	sum := 0
	for _, n := range total {
		sum += n
	}
	if sum != items {
		t.Fatalf("reported processed across runs = %d, want %d", sum, items)
	}
}

func TestRunOnceFailureContainedToItem(t *testing.T) {
	acme := binding("acme")
	dir := &fakeDirectory{tenants: []models.TenantBinding{acme}}
	stores := newFakeStores()
	store := stores.ForTenant(acme).(*fakeStore)

	past := time.Now().Add(-time.Minute)
	bad := store.add(past, models.RecurrenceDaily, &PromotionError{Reason: "creator no longer exists or is inactive"})
	good := store.add(past, models.RecurrenceOnce, nil)

	engine := NewEngine(dir, stores, 1, nil)
	summary, err := engine.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if store.status(bad) != models.ProcessingFailed {
		t.Error("failing item not marked failed")
	}
	if store.status(good) != models.ProcessingProcessed {
		t.Error("healthy item must still promote")
	}
	// A failed occurrence terminates its recurrence chain.
	if n := store.pendingCount(); n != 0 {
		t.Errorf("pending after run = %d, want 0 (no next occurrence for failed row)", n)
	}
}

// settledStore simulates losing the mark-failed race: Promote reports a
// business failure, but by the time MarkFailed runs another sweep has already
// settled the row.
type settledStore struct {
	due []uuid.UUID
}

func (s *settledStore) DueScheduledTasks(context.Context, time.Time) ([]uuid.UUID, error) {
	return s.due, nil
}

func (s *settledStore) Promote(context.Context, uuid.UUID, time.Time) (bool, error) {
	return false, &PromotionError{Reason: "creator no longer exists or is inactive"}
}

func (s *settledStore) MarkFailed(context.Context, uuid.UUID, string, time.Time) (bool, error) {
	return false, nil
}

type singleStores struct{ store TenantStore }

func (s *singleStores) ForTenant(models.TenantBinding) TenantStore { return s.store }

func TestRunOnceLostMarkFailedRaceNotCounted(t *testing.T) {
	acme := binding("acme")
	dir := &fakeDirectory{tenants: []models.TenantBinding{acme}}
	stores := &singleStores{store: &settledStore{due: []uuid.UUID{uuid.New()}}}

	engine := NewEngine(dir, stores, 1, nil)
	summary, err := engine.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	// The run that performed the transition owns the count; this one lost.
	if summary.Failed != 0 {
		t.Fatalf("Failed = %d, want 0 when another run settled the row", summary.Failed)
	}
	if summary.Processed != 0 {
		t.Fatalf("Processed = %d, want 0", summary.Processed)
	}
}

func TestRunOnceTransientErrorLeavesPending(t *testing.T) {
	acme := binding("acme")
	dir := &fakeDirectory{tenants: []models.TenantBinding{acme}}
	stores := newFakeStores()
	store := stores.ForTenant(acme).(*fakeStore)

	past := time.Now().Add(-time.Minute)
	flaky := store.add(past, models.RecurrenceOnce, errors.New("connection reset"))

	engine := NewEngine(dir, stores, 1, nil)
	summary, err := engine.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Processed != 0 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if store.status(flaky) != models.ProcessingPending {
		t.Error("transient failure must leave the row pending for the next sweep")
	}

	// Next sweep succeeds once the store recovers.
	store.mu.Lock()
	store.items[flaky].promoteErr = nil
	store.mu.Unlock()
	summary, err = engine.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce retry: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("retry summary = %+v", summary)
	}
}

func TestRunOnceTenantFailureContained(t *testing.T) {
	broken := binding("broken")
	healthy := binding("healthy")
	dir := &fakeDirectory{tenants: []models.TenantBinding{broken, healthy}}
	stores := newFakeStores()

	brokenStore := stores.ForTenant(broken).(*fakeStore)
	brokenStore.dueErr = errors.New("partition unreachable")
	healthyStore := stores.ForTenant(healthy).(*fakeStore)
	ok := healthyStore.add(time.Now().Add(-time.Minute), models.RecurrenceOnce, nil)

	engine := NewEngine(dir, stores, 2, nil)
	summary, err := engine.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.TenantErrors != 1 {
		t.Errorf("TenantErrors = %d, want 1", summary.TenantErrors)
	}
	if summary.Processed != 1 {
		t.Errorf("Processed = %d, want 1", summary.Processed)
	}
	if healthyStore.status(ok) != models.ProcessingProcessed {
		t.Error("healthy tenant must be unaffected by the broken one")
	}
}

func TestRunOnceRecurrenceChainsAcrossSweeps(t *testing.T) {
	acme := binding("acme")
	dir := &fakeDirectory{tenants: []models.TenantBinding{acme}}
	stores := newFakeStores()
	store := stores.ForTenant(acme).(*fakeStore)

	store.add(time.Now().Add(-48*time.Hour), models.RecurrenceDaily, nil)
	engine := NewEngine(dir, stores, 1, nil)

	// Each sweep promotes the due occurrence and leaves exactly one fresh
	// pending row for the next one.
	for sweep := 0; sweep < 3; sweep++ {
		summary, err := engine.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("sweep %d: %v", sweep, err)
		}
		if summary.Processed != 1 {
			t.Fatalf("sweep %d processed = %d, want 1", sweep, summary.Processed)
		}
		if n := store.pendingCount(); n != 1 {
			t.Fatalf("sweep %d pending = %d, want 1", sweep, n)
		}
	}
}

func TestRunOncePartitionIsolation(t *testing.T) {
	acme := binding("acme")
	beta := binding("beta")
	dir := &fakeDirectory{tenants: []models.TenantBinding{acme, beta}}
	stores := newFakeStores()

	acmeStore := stores.ForTenant(acme).(*fakeStore)
	betaStore := stores.ForTenant(beta).(*fakeStore)
	past := time.Now().Add(-time.Minute)
	a := acmeStore.add(past, models.RecurrenceOnce, nil)
	b := betaStore.add(past, models.RecurrenceOnce, nil)

	engine := NewEngine(dir, stores, 2, nil)
	summary, err := engine.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("Processed = %d, want 2", summary.Processed)
	}
	if acmeStore.status(a) != models.ProcessingProcessed || betaStore.status(b) != models.ProcessingProcessed {
		t.Error("each tenant's item must be promoted inside its own partition")
	}
	if acmeStore.totalClaims() != 1 || betaStore.totalClaims() != 1 {
		t.Error("claims must not leak across partitions")
	}
}

func TestRunOnceDirectoryErrorAborts(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("store down")}
	engine := NewEngine(dir, newFakeStores(), 1, nil)
	if _, err := engine.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when the directory is unavailable")
	}
}
