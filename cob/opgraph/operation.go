package opgraph

import (
	"errors"

	"github.com/cobkit/cobkit/util/crypto"
)

var (
	ErrInvalidSignature = errors.New("operation has invalid signature")
	ErrIncorrectCid     = errors.New("operation has incorrect CID")
	ErrMalformedPayload = errors.New("operation payload is malformed")
)

// Operation is a signed, content-addressed unit of change.
// Parents reference the operations it causally depends on; the root
// operation of an object is the only one with no parents.
type Operation struct {
	Next     []*Operation
	Previous []*Operation
	Parents  []string
	Id       string
	Clock    uint64
	Author   crypto.PubKey
	Payload  []byte
	// ObjectType is set on root operations only and selects the reducer
	ObjectType string
	// Nonce is set on root operations only and makes object ids unique
	Nonce     string
	Signature []byte
}

func (o *Operation) IsRoot() bool {
	return len(o.Parents) == 0
}

func (o *Operation) Cid() string {
	return o.Id
}
