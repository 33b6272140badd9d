package cob

import (
	"fmt"

	"github.com/cobkit/cobkit/cob/opgraph"
)

// State is the materialized state of one object. It is derived, never
// mutated directly: the object rebuilds it by folding the linearized
// operation sequence.
type State interface{}

// Reducer folds ordered operations into a materialized state for one
// object type. Apply must be total over any signature-valid, causally
// complete sequence: an action that is semantically invalid for the
// current state folds as a no-op instead of aborting the replay.
type Reducer interface {
	// TypeTag returns the object type this reducer serves
	TypeTag() string
	// NewState builds the initial state from the root operation. It
	// owns root payload validation: a root the reducer cannot accept
	// fails object creation here. Root payloads are not actions and
	// never pass through ValidateAction.
	NewState(root *opgraph.Operation) (State, error)
	// ValidateAction structurally validates a non-root action payload
	// before it is admitted into the dag
	ValidateAction(payload []byte) error
	// Apply folds one operation into the state
	Apply(st State, o *opgraph.Operation) State
}

// Registry holds the closed set of known reducers, selected by the
// object's type tag.
type Registry struct {
	factories map[string]func() Reducer
}

func NewRegistry(factories ...func() Reducer) *Registry {
	r := &Registry{factories: make(map[string]func() Reducer)}
	for _, f := range factories {
		tag := f().TypeTag()
		if _, ok := r.factories[tag]; ok {
			panic(fmt.Errorf("reducer '%s' already registered", tag))
		}
		r.factories[tag] = f
	}
	return r
}

func (r *Registry) New(typeTag string) (Reducer, error) {
	f, ok := r.factories[typeTag]
	if !ok {
		return nil, ErrUnknownObjectType
	}
	return f(), nil
}
