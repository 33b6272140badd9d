package storage

import (
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/zeebo/blake3"

	"github.com/cobkit/cobkit/cob/opgraph"
)

const checksumSize = 32

// pebbleStore keeps operations under "o/<objectId>/<opId>" and object
// metadata under "m/<objectId>". Values carry a blake3 checksum prefix
// so silent corruption surfaces as ErrCorrupted instead of bad state.
type pebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (OpStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(16 << 20),
		MemTableSize: 8 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &pebbleStore{db: db}, nil
}

func opKey(objectId, opId string) []byte {
	return []byte("o/" + objectId + "/" + opId)
}

func metaKey(objectId string) []byte {
	return []byte("m/" + objectId)
}

func seal(value []byte) []byte {
	sum := blake3.Sum256(value)
	out := make([]byte, 0, checksumSize+len(value))
	out = append(out, sum[:]...)
	out = append(out, value...)
	return out
}

func unseal(stored []byte) ([]byte, error) {
	if len(stored) < checksumSize {
		return nil, ErrCorrupted
	}
	value := stored[checksumSize:]
	sum := blake3.Sum256(value)
	for i := 0; i < checksumSize; i++ {
		if stored[i] != sum[i] {
			return nil, ErrCorrupted
		}
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *pebbleStore) get(key []byte) ([]byte, error) {
	stored, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return unseal(stored)
}

func (s *pebbleStore) AddOp(objectId string, raw *opgraph.RawOperation) error {
	return s.db.Set(opKey(objectId, raw.Id), seal(raw.Raw), pebble.NoSync)
}

func (s *pebbleStore) GetOp(objectId, opId string) (*opgraph.RawOperation, error) {
	value, err := s.get(opKey(objectId, opId))
	if err != nil {
		return nil, err
	}
	return &opgraph.RawOperation{Id: opId, Raw: value}, nil
}

func (s *pebbleStore) HasOp(objectId, opId string) (bool, error) {
	_, closer, err := s.db.Get(opKey(objectId, opId))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (s *pebbleStore) ListOps(objectId string) (ops []*opgraph.RawOperation, err error) {
	prefix := "o/" + objectId + "/"
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := unseal(iter.Value())
		if err != nil {
			return nil, err
		}
		ops = append(ops, &opgraph.RawOperation{
			Id:  string(iter.Key()[len(prefix):]),
			Raw: value,
		})
	}
	return ops, iter.Error()
}

func (s *pebbleStore) SetMeta(meta ObjectMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Set(metaKey(meta.Id), seal(data), pebble.NoSync)
}

func (s *pebbleStore) GetMeta(objectId string) (meta ObjectMeta, err error) {
	value, err := s.get(metaKey(objectId))
	if err != nil {
		return
	}
	err = json.Unmarshal(value, &meta)
	return
}

func (s *pebbleStore) ListObjects() (metas []ObjectMeta, err error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("m/"),
		UpperBound: []byte("m/\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := unseal(iter.Value())
		if err != nil {
			return nil, err
		}
		var meta ObjectMeta
		if err = json.Unmarshal(value, &meta); err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, iter.Error()
}

func (s *pebbleStore) Close() error {
	if err := s.db.Flush(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
