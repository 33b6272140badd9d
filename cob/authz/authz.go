// Package authz rejects structurally or cryptographically invalid
// operations at the object boundary. Payload-level authorization (who may
// vote, who may redact) is owned by the reducers: those operations enter
// the dag for audit purposes and fold as no-ops.
package authz

import (
	"github.com/cobkit/cobkit/cob/opgraph"
)

// ActionValidator structurally validates an action payload. Reducers
// implement it for their own payload grammar.
type ActionValidator interface {
	ValidateAction(payload []byte) error
}

type Checker struct {
	builder opgraph.Builder
}

func NewChecker(builder opgraph.Builder) *Checker {
	return &Checker{builder: builder}
}

// Verify checks the content id and the author signature of a raw
// operation and then validates the action structurally. Any error here
// means the operation is dropped, never buffered.
func (c *Checker) Verify(raw *opgraph.RawOperation, v ActionValidator) (op *opgraph.Operation, err error) {
	op, err = c.builder.Unmarshal(raw, true)
	if err != nil {
		return nil, err
	}
	if v != nil {
		if err = v.ValidateAction(op.Payload); err != nil {
			return nil, err
		}
	}
	return op, nil
}
