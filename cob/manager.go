package cob

import (
	"context"
	"errors"
	"sync"

	"github.com/cheggaaa/mb/v3"
	"go.uber.org/zap"

	"github.com/cobkit/cobkit/account"
	"github.com/cobkit/cobkit/app"
	"github.com/cobkit/cobkit/cob/authz"
	"github.com/cobkit/cobkit/cob/opgraph"
	"github.com/cobkit/cobkit/storage"
	"github.com/cobkit/cobkit/util/crypto"
)

const CName = "cob.objectmanager"

const objectQueueSize = 100

// Manager owns the open objects. Operations may arrive from many peers
// concurrently; that concurrency is absorbed by a queue per object, so
// each object still ingests as discrete, serialized steps while distinct
// objects proceed in parallel.
type Manager struct {
	mu      sync.Mutex
	objects map[string]*objectEntry
	closed  bool

	registry *Registry
	builder  opgraph.Builder
	checker  *authz.Checker
	key      crypto.PrivKey
	backend  storage.Service
	store    storage.OpStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type objectEntry struct {
	obj   *Object
	queue *mb.MB[*opgraph.RawOperation]
}

func NewManager(registry *Registry) *Manager {
	builder := opgraph.NewBuilder(crypto.NewKeyStorage())
	return &Manager{
		objects:  make(map[string]*objectEntry),
		registry: registry,
		builder:  builder,
		checker:  authz.NewChecker(builder),
	}
}

func (m *Manager) Init(a *app.App) (err error) {
	m.key = a.MustComponent(account.CName).(account.Service).Key()
	// the store itself opens in the storage service's Run stage
	m.backend = a.MustComponent(storage.CName).(storage.Service)
	return
}

func (m *Manager) Name() string {
	return CName
}

// Run reopens every persisted object, refolding each from its stored
// operations.
func (m *Manager) Run(ctx context.Context) (err error) {
	if m.ctx == nil {
		m.ctx, m.cancel = context.WithCancel(context.Background())
	}
	if m.store == nil && m.backend != nil {
		m.store = m.backend.Store()
	}
	if m.store == nil {
		m.store = storage.NewInMemoryStore()
	}
	metas, err := m.store.ListObjects()
	if err != nil {
		return err
	}
	for _, meta := range metas {
		obj, err := LoadObject(meta.Id, m.deps())
		if err != nil {
			log.Error("can't load object", zap.String("objectId", meta.Id), zap.Error(err))
			continue
		}
		m.startEntry(obj)
	}
	return nil
}

func (m *Manager) deps() Deps {
	return Deps{
		Builder:  m.builder,
		Registry: m.registry,
		Checker:  m.checker,
		Key:      m.key,
		Store:    m.store,
	}
}

func (m *Manager) startEntry(obj *Object) *objectEntry {
	if m.ctx == nil {
		m.ctx, m.cancel = context.WithCancel(context.Background())
	}
	entry := &objectEntry{
		obj:   obj,
		queue: mb.New[*opgraph.RawOperation](objectQueueSize),
	}
	m.objects[obj.Id()] = entry
	m.wg.Add(1)
	go m.objectLoop(entry)
	return entry
}

func (m *Manager) objectLoop(entry *objectEntry) {
	defer m.wg.Done()
	for {
		raw, err := entry.queue.WaitOne(m.ctx)
		if err != nil {
			return
		}
		if _, err = entry.obj.Ingest(raw); err != nil {
			log.Info("dropped operation",
				zap.String("objectId", entry.obj.Id()),
				zap.String("opId", raw.Id),
				zap.Error(err))
		}
	}
}

// CreateObject builds a new object of the given type from a root payload.
func (m *Manager) CreateObject(objectType string, payload []byte) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	obj, err := NewObject(objectType, payload, m.deps())
	if err != nil {
		return nil, err
	}
	m.startEntry(obj)
	return obj, nil
}

// OpenObject admits an object received from a peer by its root operation.
func (m *Manager) OpenObject(rawRoot *opgraph.RawOperation) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if entry, ok := m.objects[rawRoot.Id]; ok {
		return entry.obj, nil
	}
	obj, err := OpenObject(rawRoot, m.deps())
	if err != nil {
		return nil, err
	}
	m.startEntry(obj)
	return obj, nil
}

func (m *Manager) Get(objectId string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.objects[objectId]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return entry.obj, nil
}

func (m *Manager) Ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	return ids
}

// ListStoredOps returns the persisted raw operations of an object in
// id order, suitable for replication to another replica.
func (m *Manager) ListStoredOps(objectId string) ([]*opgraph.RawOperation, error) {
	if _, err := m.Get(objectId); err != nil {
		return nil, err
	}
	return m.store.ListOps(objectId)
}

// Deliver enqueues an operation received from a peer; the object's
// worker ingests it in arrival order.
func (m *Manager) Deliver(ctx context.Context, objectId string, raw *opgraph.RawOperation) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	entry, ok := m.objects[objectId]
	m.mu.Unlock()
	if !ok {
		return ErrObjectNotFound
	}
	return entry.queue.Add(ctx, raw)
}

func (m *Manager) Close(ctx context.Context) (err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	entries := make([]*objectEntry, 0, len(m.objects))
	for _, entry := range m.objects {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	// closing the queues lets the workers drain what is already enqueued
	for _, entry := range entries {
		if e := entry.queue.Close(); e != nil && !errors.Is(e, mb.ErrClosed) {
			err = e
		}
	}
	m.wg.Wait()
	if m.cancel != nil {
		m.cancel()
	}
	return err
}
