// Package multiset implements a counted-set collaborative object. Each
// operation adds or removes one occurrence of a key; counts never drop
// below zero, so removing an absent key is a no-op.
package multiset

import (
	"encoding/json"
	"fmt"

	"github.com/cobkit/cobkit/cob"
	"github.com/cobkit/cobkit/cob/opgraph"
)

const TypeTag = "xyz.cobkit.multiset"

const (
	actionAdd    = "add"
	actionRemove = "remove"
)

// Action is the payload of a multiset operation.
type Action struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// State maps each key to its occurrence count. Keys with count zero are
// absent from the map.
type State map[string]int

// Count returns the number of occurrences of key.
func (s State) Count(key string) int {
	return s[key]
}

// Keys returns the set of keys with a positive count.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

type reducer struct{}

// New returns the multiset reducer factory result.
func New() cob.Reducer {
	return &reducer{}
}

func (r *reducer) TypeTag() string {
	return TypeTag
}

func (r *reducer) NewState(root *opgraph.Operation) (cob.State, error) {
	st := State{}
	// the root may itself carry an action
	if len(root.Payload) == 0 || string(root.Payload) == "null" {
		return st, nil
	}
	if err := r.ValidateAction(root.Payload); err != nil {
		return nil, err
	}
	var a Action
	if err := json.Unmarshal(root.Payload, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", opgraph.ErrMalformedPayload, err)
	}
	return applyAction(st, a), nil
}

func (r *reducer) ValidateAction(payload []byte) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	var a Action
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Errorf("%w: %v", opgraph.ErrMalformedPayload, err)
	}
	switch a.Type {
	case actionAdd, actionRemove:
		if a.Key == "" {
			return fmt.Errorf("%w: empty key", opgraph.ErrMalformedPayload)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", cob.ErrUnrecognizedAction, a.Type)
	}
}

// Apply folds one operation into the state. Payloads that fail to decode
// are skipped; the fold is total.
func (r *reducer) Apply(st cob.State, o *opgraph.Operation) cob.State {
	cur := st.(State)
	var a Action
	if err := json.Unmarshal(o.Payload, &a); err != nil {
		return cur
	}
	return applyAction(cur, a)
}

func applyAction(st State, a Action) State {
	switch a.Type {
	case actionAdd:
		st[a.Key]++
	case actionRemove:
		if st[a.Key] > 0 {
			st[a.Key]--
			if st[a.Key] == 0 {
				delete(st, a.Key)
			}
		}
	}
	return st
}

// AddAction builds the payload that adds one occurrence of key.
func AddAction(key string) ([]byte, error) {
	return json.Marshal(Action{Type: actionAdd, Key: key})
}

// RemoveAction builds the payload that removes one occurrence of key.
func RemoveAction(key string) ([]byte, error) {
	return json.Marshal(Action{Type: actionRemove, Key: key})
}
