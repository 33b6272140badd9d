package cob

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cobkit/cobkit/app/logger"
	"github.com/cobkit/cobkit/cob/authz"
	"github.com/cobkit/cobkit/cob/opgraph"
	"github.com/cobkit/cobkit/storage"
	"github.com/cobkit/cobkit/util/crypto"
)

var log = logger.NewNamed("cob")

// Status is the result of ingesting one operation.
type Status int

const (
	// StatusApplied means the operation is causally complete and folded
	// into the materialized state
	StatusApplied Status = iota
	// StatusPending means the operation waits for missing parents; it
	// will be promoted the moment they arrive
	StatusPending
)

// Deps carries the collaborators every object needs. Key may be nil for
// a read-only replica; Store may be nil for an ephemeral object.
type Deps struct {
	Builder  opgraph.Builder
	Registry *Registry
	Checker  *authz.Checker
	Key      crypto.PrivKey
	Store    storage.OpStore
}

// Object is one collaborative object: a dag of signed operations plus
// the state derived from its linearization. The dag and the state form
// a single unit of mutual exclusion; all entry points serialize on the
// object mutex while distinct objects stay independent.
type Object struct {
	sync.RWMutex

	id         string
	objectType string
	dag        *opgraph.Dag
	reducer    Reducer
	state      State

	builder opgraph.Builder
	checker *authz.Checker
	key     crypto.PrivKey
	store   storage.OpStore

	maxClock uint64
}

// NewObject creates an object locally: it builds and signs the root
// operation from the given payload and persists it.
func NewObject(objectType string, payload []byte, deps Deps) (o *Object, err error) {
	reducer, err := deps.Registry.New(objectType)
	if err != nil {
		return nil, err
	}
	root, raw, err := deps.Builder.Build(opgraph.BuilderContent{
		ObjectType: objectType,
		PrivKey:    deps.Key,
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}
	o, err = newObject(root, reducer, deps)
	if err != nil {
		return nil, err
	}
	if err = o.persist(raw); err != nil {
		return nil, err
	}
	return o, nil
}

// OpenObject builds an object around a received root operation.
func OpenObject(rawRoot *opgraph.RawOperation, deps Deps) (o *Object, err error) {
	root, err := deps.Builder.Unmarshal(rawRoot, true)
	if err != nil {
		return nil, err
	}
	if !root.IsRoot() {
		return nil, opgraph.ErrMalformedPayload
	}
	reducer, err := deps.Registry.New(root.ObjectType)
	if err != nil {
		return nil, err
	}
	o, err = newObject(root, reducer, deps)
	if err != nil {
		return nil, err
	}
	if err = o.persist(rawRoot); err != nil {
		return nil, err
	}
	return o, nil
}

// LoadObject rebuilds an object from its persisted operations.
func LoadObject(objectId string, deps Deps) (o *Object, err error) {
	rawRoot, err := deps.Store.GetOp(objectId, objectId)
	if err != nil {
		return nil, err
	}
	root, err := deps.Builder.Unmarshal(rawRoot, true)
	if err != nil {
		return nil, err
	}
	reducer, err := deps.Registry.New(root.ObjectType)
	if err != nil {
		return nil, err
	}
	o, err = newObject(root, reducer, deps)
	if err != nil {
		return nil, err
	}
	ops, err := deps.Store.ListOps(objectId)
	if err != nil {
		return nil, err
	}
	for _, raw := range ops {
		if raw.Id == objectId {
			continue
		}
		if _, err = o.ingest(raw, false); err != nil {
			log.Warn("skipping stored operation",
				zap.String("objectId", objectId), zap.String("opId", raw.Id), zap.Error(err))
		}
	}
	return o, nil
}

func newObject(root *opgraph.Operation, reducer Reducer, deps Deps) (*Object, error) {
	state, err := reducer.NewState(root)
	if err != nil {
		return nil, err
	}
	o := &Object{
		id:         root.Id,
		objectType: root.ObjectType,
		dag:        opgraph.NewDag(),
		reducer:    reducer,
		state:      state,
		builder:    deps.Builder,
		checker:    deps.Checker,
		key:        deps.Key,
		store:      deps.Store,
		maxClock:   root.Clock,
	}
	o.dag.Add(root)
	return o, nil
}

func (o *Object) Id() string {
	return o.id
}

func (o *Object) Type() string {
	return o.objectType
}

// State returns the current materialized state. Callers must treat it
// as read-only; it is invalidated and rebuilt on every applied ingest.
func (o *Object) State() State {
	o.RLock()
	defer o.RUnlock()
	return o.state
}

func (o *Object) Heads() []string {
	o.RLock()
	defer o.RUnlock()
	heads := o.dag.Heads()
	res := make([]string, len(heads))
	copy(res, heads)
	return res
}

// MissingParents lists the operation ids the pending buffer waits for.
func (o *Object) MissingParents() []string {
	o.RLock()
	defer o.RUnlock()
	return o.dag.MissingParents()
}

// Graph renders the operation dag in graphviz dot format.
func (o *Object) Graph(parser opgraph.DescriptionParser) (string, error) {
	o.RLock()
	defer o.RUnlock()
	return o.dag.Graph(parser)
}

// Hash digests the linearized operation set for replica comparison.
func (o *Object) Hash() string {
	o.RLock()
	defer o.RUnlock()
	return o.dag.Hash()
}

// Ingest validates and applies a received operation. Signature or
// structural failures drop the operation with an error; an operation
// with unknown parents is parked and promoted later, which cascades:
// applying one parent may unblock many descendants at once.
func (o *Object) Ingest(raw *opgraph.RawOperation) (Status, error) {
	o.Lock()
	defer o.Unlock()
	return o.ingest(raw, true)
}

func (o *Object) ingest(raw *opgraph.RawOperation, persist bool) (Status, error) {
	// duplicate ingestion is a no-op, not an error
	if o.dag.Has(raw.Id) {
		return StatusApplied, nil
	}
	if o.dag.HasPending(raw.Id) {
		return StatusPending, nil
	}
	op, err := o.checker.Verify(raw, o.reducer)
	if err != nil {
		return 0, err
	}
	attached := o.dag.Add(op)
	if len(attached) == 0 {
		if o.dag.HasPending(op.Id) {
			// parked ops are persisted too so a reload re-parks them
			if persist {
				if err = o.persist(raw); err != nil {
					return 0, err
				}
			}
			return StatusPending, nil
		}
		// a second root or an op below an invalidated ancestor
		return 0, opgraph.ErrMalformedPayload
	}
	for _, a := range attached {
		if a.Clock > o.maxClock {
			o.maxClock = a.Clock
		}
	}
	o.refold()
	if persist {
		if err = o.persist(raw); err != nil {
			return 0, err
		}
	}
	return StatusApplied, nil
}

// Propose builds, signs and applies a local operation on top of the
// current dag tips (or the explicit parents when given) and returns its
// wire form for propagation.
func (o *Object) Propose(payload []byte, parents ...string) (*opgraph.RawOperation, error) {
	o.Lock()
	defer o.Unlock()
	if o.key == nil {
		return nil, opgraph.ErrSigningUnavailable
	}
	if err := o.reducer.ValidateAction(payload); err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		parents = o.dag.Heads()
	}
	op, raw, err := o.builder.Build(opgraph.BuilderContent{
		Parents: parents,
		Clock:   o.maxClock + 1,
		PrivKey: o.key,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}
	attached := o.dag.Add(op)
	if len(attached) == 0 {
		// explicit parents must already be attached
		return nil, opgraph.ErrMalformedPayload
	}
	o.maxClock = op.Clock
	o.refold()
	if err = o.persist(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// refold rebuilds the materialized state from scratch by folding the
// linearized sequence. The fold is total: reducers encode semantic
// misfits as no-ops, so replay never aborts partway.
func (o *Object) refold() {
	state, err := o.reducer.NewState(o.dag.Root())
	if err != nil {
		// the root was validated when the object was built
		log.Error("refold: root rejected", zap.String("objectId", o.id), zap.Error(err))
		return
	}
	seq := o.dag.Linearize()
	for _, op := range seq[1:] {
		state = o.reducer.Apply(state, op)
	}
	o.state = state
}

func (o *Object) persist(raw *opgraph.RawOperation) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.AddOp(o.id, raw); err != nil {
		return err
	}
	return o.store.SetMeta(storage.ObjectMeta{
		Id:    o.id,
		Type:  o.objectType,
		Heads: o.dag.Heads(),
	})
}
