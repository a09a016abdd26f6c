package integration

import (
	"context"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const testAccount = "acct-1"

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeClock returns strictly increasing times
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// ---------------------------------------------------------------------------
// MockRemoteAdapter
// ---------------------------------------------------------------------------

// MockRemoteAdapter is a mock implementation of integration.RemoteAdapter
type MockRemoteAdapter struct {
	mock.Mock
	provider    integration.Provider
	entityTypes []integration.EntityType
	account     string
}

func newMockAdapter(provider integration.Provider, types ...integration.EntityType) *MockRemoteAdapter {
	m := &MockRemoteAdapter{provider: provider, entityTypes: types, account: testAccount}
	m.On("Authenticate", mock.Anything).Return(nil).Maybe()
	return m
}

func (m *MockRemoteAdapter) Provider() integration.Provider { return m.provider }

func (m *MockRemoteAdapter) EntityTypes() []integration.EntityType { return m.entityTypes }

func (m *MockRemoteAdapter) AccountID() string { return m.account }

func (m *MockRemoteAdapter) Authenticate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRemoteAdapter) FetchPage(ctx context.Context, entityType integration.EntityType, cursor string, pageSize int) (*integration.Page, error) {
	args := m.Called(ctx, entityType, cursor, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Page), args.Error(1)
}

func (m *MockRemoteAdapter) FetchOne(ctx context.Context, entityType integration.EntityType, externalID string) (*integration.RemoteRecord, error) {
	args := m.Called(ctx, entityType, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RemoteRecord), args.Error(1)
}

func (m *MockRemoteAdapter) Push(ctx context.Context, entityType integration.EntityType, externalID string, req integration.PushRequest) (*integration.PushResult, error) {
	args := m.Called(ctx, entityType, externalID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.PushResult), args.Error(1)
}

func (m *MockRemoteAdapter) ParseWebhook(body []byte, contentType string) ([]integration.WebhookEvent, error) {
	args := m.Called(body, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.WebhookEvent), args.Error(1)
}

// ---------------------------------------------------------------------------
// In-memory stores
// ---------------------------------------------------------------------------

type memStore struct {
	mu             sync.Mutex
	entities       map[integration.EntityKey]*integration.SyncEntity
	businessWrites int
	metadataWrites int
	saveErr        error
}

func newMemStore() *memStore {
	return &memStore{entities: make(map[integration.EntityKey]*integration.SyncEntity)}
}

func (s *memStore) Get(_ context.Context, key integration.EntityKey) (*integration.SyncEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[key]
	if !ok {
		return nil, integration.ErrEntityNotFound
	}
	return e.Clone(), nil
}

func (s *memStore) Exists(_ context.Context, key integration.EntityKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entities[key]
	return ok, nil
}

func (s *memStore) SaveBatch(_ context.Context, entities []*integration.SyncEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	for _, e := range entities {
		s.entities[e.Key()] = e.Clone()
		s.businessWrites++
	}
	return nil
}

func (s *memStore) SetMetadata(_ context.Context, key integration.EntityKey, meta integration.SyncMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setMetadata(key, meta)
	return nil
}

func (s *memStore) SetMetadataBatch(_ context.Context, metas map[integration.EntityKey]integration.SyncMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, meta := range metas {
		s.setMetadata(key, meta)
	}
	return nil
}

func (s *memStore) setMetadata(key integration.EntityKey, meta integration.SyncMetadata) {
	e, ok := s.entities[key]
	if !ok {
		return
	}
	e.SyncStatus = meta.SyncStatus
	e.LastSyncedAt = meta.LastSyncedAt
	e.SyncErrorMessage = meta.SyncErrorMessage
	e.ConsecutiveErrorCount = meta.ConsecutiveErrorCount
	e.LoopGuard = meta.LoopGuard
	e.NeedsRevalidation = meta.NeedsRevalidation
	s.metadataWrites++
}

func (s *memStore) ClearLoopGuard(_ context.Context, keys []integration.EntityKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if e, ok := s.entities[k]; ok {
			e.LoopGuard = false
		}
	}
	return nil
}

func (s *memStore) ListPollable(_ context.Context, q integration.PollableQuery) ([]*integration.SyncEntity, error) {
	return s.filter(func(e *integration.SyncEntity) bool {
		if e.EntityType != q.EntityType || e.AccountID != q.AccountID || e.IsCircuitOpen() {
			return false
		}
		return e.NeedsRevalidation || !slices.Contains(q.ExcludeStatuses, e.CanonicalStatus)
	}), nil
}

func (s *memStore) ListPendingPush(_ context.Context, entityType integration.EntityType, _ int) ([]*integration.SyncEntity, error) {
	return s.filter(func(e *integration.SyncEntity) bool {
		return e.EntityType == entityType && e.NeedsPush() && !e.IsCircuitOpen()
	}), nil
}

func (s *memStore) ListNeedingRevalidation(_ context.Context, entityType integration.EntityType, accountID string, _ int) ([]*integration.SyncEntity, error) {
	return s.filter(func(e *integration.SyncEntity) bool {
		return e.EntityType == entityType && e.AccountID == accountID && e.NeedsRevalidation
	}), nil
}

func (s *memStore) List(_ context.Context, f integration.EntityFilter) ([]*integration.SyncEntity, int64, error) {
	out := s.filter(func(e *integration.SyncEntity) bool {
		return e.EntityType == f.EntityType && (f.SyncStatus == "" || e.SyncStatus == f.SyncStatus)
	})
	return out, int64(len(out)), nil
}

func (s *memStore) filter(keep func(*integration.SyncEntity) bool) []*integration.SyncEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*integration.SyncEntity
	for _, e := range s.entities {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

func (s *memStore) mustGet(t *testing.T, key integration.EntityKey) *integration.SyncEntity {
	t.Helper()
	e, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("entity %s not found: %v", key, err)
	}
	return e
}

type memWatermarks struct {
	mu    sync.Mutex
	marks map[string]*integration.Watermark
	saves int
}

func newMemWatermarks() *memWatermarks {
	return &memWatermarks{marks: make(map[string]*integration.Watermark)}
}

func (r *memWatermarks) Get(_ context.Context, t integration.EntityType, account string) (*integration.Watermark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.marks[string(t)+"/"+account]
	if !ok {
		return nil, integration.ErrWatermarkNotFound
	}
	c := *w
	return &c, nil
}

func (r *memWatermarks) Save(_ context.Context, w *integration.Watermark) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *w
	r.marks[string(w.EntityType)+"/"+w.AccountID] = &c
	r.saves++
	return nil
}

type memRuns struct {
	mu   sync.Mutex
	runs []*integration.SyncRun
}

func (r *memRuns) Save(_ context.Context, run *integration.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *memRuns) ListRecent(_ context.Context, _ integration.EntityType, limit int) ([]*integration.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) < limit {
		limit = len(r.runs)
	}
	return r.runs[:limit], nil
}

func (r *memRuns) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// ---------------------------------------------------------------------------
// Event bus, queue, idempotency
// ---------------------------------------------------------------------------

// syncBus dispatches synchronously and records every event
type syncBus struct {
	mu       sync.Mutex
	handlers []shared.EventHandler
	events   []shared.DomainEvent
}

func (b *syncBus) Subscribe(h shared.EventHandler) {
	b.handlers = append(b.handlers, h)
}

func (b *syncBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.Lock()
	b.events = append(b.events, events...)
	handlers := append([]shared.EventHandler(nil), b.handlers...)
	b.mu.Unlock()

	for _, ev := range events {
		for _, h := range handlers {
			if slices.Contains(h.EventTypes(), ev.EventType()) {
				_ = h.Handle(ctx, ev)
			}
		}
	}
	return nil
}

func (b *syncBus) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

type fakeQueue struct {
	mu        sync.Mutex
	handlers  map[string]shared.TaskHandler
	tasks     []shared.Task
	submitErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: make(map[string]shared.TaskHandler)}
}

func (q *fakeQueue) Register(kind string, h shared.TaskHandler) { q.handlers[kind] = h }

func (q *fakeQueue) Submit(_ context.Context, task shared.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return q.submitErr
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) Start(context.Context) error { return nil }
func (q *fakeQueue) Stop(context.Context) error  { return nil }

// drain runs every queued task
func (q *fakeQueue) drain(ctx context.Context) {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, t := range tasks {
		_ = q.handlers[t.Kind](ctx, t)
	}
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]struct{})}
}

func (m *memIdempotency) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memIdempotency) IsProcessed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *memIdempotency) Close() error { return nil }

type fakeArchive struct {
	mu       sync.Mutex
	archived []string
}

func (a *fakeArchive) Archive(_ context.Context, provider integration.Provider, eventID string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	loc := string(provider) + "/" + eventID
	a.archived = append(a.archived, loc)
	return loc, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	orders      *MockRemoteAdapter
	proofs      *MockRemoteAdapter
	messaging   *MockRemoteAdapter
	registry    *integration.AdapterRegistry
	store       *memStore
	watermarks  *memWatermarks
	runs        *memRuns
	bus         *syncBus
	queue       *fakeQueue
	idempotency *memIdempotency
	archive     *fakeArchive
	clock       *fakeClock
	coordinator *SyncCoordinator
	push        *PushService
	edits       *LocalEditService
	webhooks    *WebhookService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		orders:      newMockAdapter(integration.ProviderOrderAPI, integration.EntityTypeOrder, integration.EntityTypeQuote),
		proofs:      newMockAdapter(integration.ProviderProofAPI, integration.EntityTypeProof),
		messaging:   newMockAdapter(integration.ProviderMessaging, integration.EntityTypeConversation),
		registry:    integration.NewAdapterRegistry(),
		store:       newMemStore(),
		watermarks:  newMemWatermarks(),
		runs:        &memRuns{},
		bus:         &syncBus{},
		queue:       newFakeQueue(),
		idempotency: newMemIdempotency(),
		archive:     &fakeArchive{},
		clock:       newFakeClock(),
	}
	for _, a := range []*MockRemoteAdapter{f.orders, f.proofs, f.messaging} {
		if err := f.registry.Register(a); err != nil {
			t.Fatal(err)
		}
	}

	logger := newTestLogger()
	cfg := DefaultCoordinatorConfig()
	cfg.FullSyncPageDelay = 0
	cfg.BatchSize = 2

	f.coordinator = NewSyncCoordinator(f.registry, f.store, f.watermarks, f.bus, cfg, logger,
		WithClock(f.clock.Now),
		WithSyncRunRepository(f.runs),
	)
	f.push = NewPushService(f.registry, f.store, f.bus, f.coordinator.Normalizer(), cfg.CircuitBreaker, logger)
	f.push.now = f.clock.Now
	f.edits = NewLocalEditService(f.store, f.bus, f.coordinator.Normalizer(), f.coordinator.Differ(), logger)
	f.edits.now = f.clock.Now
	f.webhooks = NewWebhookService(f.registry, f.coordinator, f.idempotency, f.queue, DefaultWebhookServiceConfig(), logger)
	f.webhooks.SetArchive(f.archive)

	f.bus.Subscribe(f.push)
	return f
}

func orderKey(id string) integration.EntityKey {
	return integration.EntityKey{EntityType: integration.EntityTypeOrder, AccountID: testAccount, ExternalID: id}
}

func orderRecord(id, statusCode, statusName string) *integration.RemoteRecord {
	return &integration.RemoteRecord{
		ExternalID: id,
		EntityType: integration.EntityTypeOrder,
		AccountID:  testAccount,
		StatusCode: statusCode,
		StatusName: statusName,
		Fields: map[string]any{
			"order_number":  id,
			"customer_name": "Acme Print Co",
			"total":         "125.5",
		},
		ChildIDs: []string{"li-1", "li-2"},
	}
}

func onePage(records ...*integration.RemoteRecord) *integration.Page {
	return &integration.Page{Records: records}
}
