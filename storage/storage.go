// Package storage persists raw operations per object. The primary
// implementation is backed by Pebble; an in-memory one serves tests.
package storage

import (
	"errors"

	"github.com/cobkit/cobkit/cob/opgraph"
)

var (
	ErrNotFound  = errors.New("storage: not found")
	ErrCorrupted = errors.New("storage: value failed checksum")
)

// ObjectMeta is the per-object bookkeeping record: the object id is the
// root operation id, Type selects the reducer, Heads are the current dag
// tips.
type ObjectMeta struct {
	Id    string   `json:"id"`
	Type  string   `json:"type"`
	Heads []string `json:"heads"`
}

type OpStore interface {
	AddOp(objectId string, raw *opgraph.RawOperation) error
	GetOp(objectId, opId string) (*opgraph.RawOperation, error)
	HasOp(objectId, opId string) (bool, error)
	ListOps(objectId string) ([]*opgraph.RawOperation, error)
	SetMeta(meta ObjectMeta) error
	GetMeta(objectId string) (ObjectMeta, error)
	ListObjects() ([]ObjectMeta, error)
	Close() error
}
