package storage

import (
	"sort"
	"sync"

	"github.com/cobkit/cobkit/cob/opgraph"
)

// inMemoryStore mirrors OpStore semantics without persistence, for tests.
type inMemoryStore struct {
	sync.Mutex
	ops   map[string]map[string][]byte
	metas map[string]ObjectMeta
}

func NewInMemoryStore() OpStore {
	return &inMemoryStore{
		ops:   make(map[string]map[string][]byte),
		metas: make(map[string]ObjectMeta),
	}
}

func (s *inMemoryStore) AddOp(objectId string, raw *opgraph.RawOperation) error {
	s.Lock()
	defer s.Unlock()
	objOps, ok := s.ops[objectId]
	if !ok {
		objOps = make(map[string][]byte)
		s.ops[objectId] = objOps
	}
	value := make([]byte, len(raw.Raw))
	copy(value, raw.Raw)
	objOps[raw.Id] = value
	return nil
}

func (s *inMemoryStore) GetOp(objectId, opId string) (*opgraph.RawOperation, error) {
	s.Lock()
	defer s.Unlock()
	value, ok := s.ops[objectId][opId]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return &opgraph.RawOperation{Id: opId, Raw: out}, nil
}

func (s *inMemoryStore) HasOp(objectId, opId string) (bool, error) {
	s.Lock()
	defer s.Unlock()
	_, ok := s.ops[objectId][opId]
	return ok, nil
}

func (s *inMemoryStore) ListOps(objectId string) (ops []*opgraph.RawOperation, err error) {
	s.Lock()
	defer s.Unlock()
	ids := make([]string, 0, len(s.ops[objectId]))
	for id := range s.ops[objectId] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		value := s.ops[objectId][id]
		out := make([]byte, len(value))
		copy(out, value)
		ops = append(ops, &opgraph.RawOperation{Id: id, Raw: out})
	}
	return
}

func (s *inMemoryStore) SetMeta(meta ObjectMeta) error {
	s.Lock()
	defer s.Unlock()
	s.metas[meta.Id] = meta
	return nil
}

func (s *inMemoryStore) GetMeta(objectId string) (ObjectMeta, error) {
	s.Lock()
	defer s.Unlock()
	meta, ok := s.metas[objectId]
	if !ok {
		return ObjectMeta{}, ErrNotFound
	}
	return meta, nil
}

func (s *inMemoryStore) ListObjects() (metas []ObjectMeta, err error) {
	s.Lock()
	defer s.Unlock()
	ids := make([]string, 0, len(s.metas))
	for id := range s.metas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		metas = append(metas, s.metas[id])
	}
	return
}

func (s *inMemoryStore) Close() error {
	return nil
}
