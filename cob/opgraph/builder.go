package opgraph

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/cobkit/cobkit/util/cidutil"
	"github.com/cobkit/cobkit/util/crypto"
)

var (
	ErrEmptyOperation      = errors.New("operation payload should not be empty")
	ErrSigningUnavailable  = errors.New("no signing key available")
	ErrMissingObjectType   = errors.New("root operation must carry an object type")
	ErrUnexpectedRootField = errors.New("non-root operation carries root-only fields")
)

// RawOperation is the wire representation of an operation: the canonical
// marshalled bytes plus the content id derived from them. Hashing Raw
// yields Id, so the bytes are self-certifying.
type RawOperation struct {
	Id  string
	Raw []byte
}

// envelope is the signed part of the wire format. Payload is kept opaque
// so the envelope parses independently of payload comprehension.
type envelope struct {
	ObjectType string          `json:"objectType,omitempty"`
	Author     string          `json:"author"`
	Parents    []string        `json:"parents"`
	Clock      uint64          `json:"clock"`
	Nonce      string          `json:"nonce,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// signedEnvelope wraps the exact signed bytes with the signature over them.
type signedEnvelope struct {
	Body      json.RawMessage `json:"body"`
	Signature []byte          `json:"signature"`
}

type BuilderContent struct {
	Parents []string
	Clock   uint64
	// ObjectType must be set for root operations only
	ObjectType string
	PrivKey    crypto.PrivKey
	Payload    []byte
}

type Builder interface {
	Build(content BuilderContent) (op *Operation, raw *RawOperation, err error)
	Unmarshal(raw *RawOperation, verify bool) (op *Operation, err error)
	Marshal(op *Operation) (raw *RawOperation, err error)
}

type opBuilder struct {
	keys crypto.KeyStorage
}

func NewBuilder(keys crypto.KeyStorage) Builder {
	return &opBuilder{keys: keys}
}

func (b *opBuilder) Build(content BuilderContent) (op *Operation, raw *RawOperation, err error) {
	if content.PrivKey == nil {
		return nil, nil, ErrSigningUnavailable
	}
	if len(content.Payload) == 0 {
		return nil, nil, ErrEmptyOperation
	}
	isRoot := len(content.Parents) == 0
	if isRoot && content.ObjectType == "" {
		return nil, nil, ErrMissingObjectType
	}
	if !isRoot && content.ObjectType != "" {
		return nil, nil, ErrUnexpectedRootField
	}
	parents := make([]string, len(content.Parents))
	copy(parents, content.Parents)
	sort.Strings(parents)

	env := envelope{
		ObjectType: content.ObjectType,
		Author:     content.PrivKey.GetPublic().Account(),
		Parents:    parents,
		Clock:      content.Clock,
		Payload:    content.Payload,
	}
	if isRoot {
		// a nonce makes otherwise identical root operations produce
		// distinct object ids
		env.Nonce = uuid.NewString()
	}
	nonce := env.Nonce
	body, err := json.Marshal(env)
	if err != nil {
		return
	}
	signature, err := content.PrivKey.Sign(body)
	if err != nil {
		return
	}
	rawBytes, err := json.Marshal(signedEnvelope{
		Body:      body,
		Signature: signature,
	})
	if err != nil {
		return
	}
	id, err := cidutil.NewCidFromBytes(rawBytes)
	if err != nil {
		return
	}
	op = &Operation{
		Parents:    parents,
		Id:         id,
		Clock:      content.Clock,
		Author:     content.PrivKey.GetPublic(),
		Payload:    content.Payload,
		ObjectType: content.ObjectType,
		Nonce:      nonce,
		Signature:  signature,
	}
	raw = &RawOperation{Id: id, Raw: rawBytes}
	return
}

func (b *opBuilder) Unmarshal(raw *RawOperation, verify bool) (op *Operation, err error) {
	if raw == nil || len(raw.Raw) == 0 {
		return nil, ErrEmptyOperation
	}
	if verify {
		// verifying ID
		if !cidutil.VerifyCid(raw.Raw, raw.Id) {
			return nil, ErrIncorrectCid
		}
	}
	var signed signedEnvelope
	if err = json.Unmarshal(raw.Raw, &signed); err != nil {
		return nil, ErrMalformedPayload
	}
	var env envelope
	if err = json.Unmarshal(signed.Body, &env); err != nil {
		return nil, ErrMalformedPayload
	}
	if len(env.Payload) == 0 {
		return nil, ErrMalformedPayload
	}
	if len(env.Parents) == 0 && env.ObjectType == "" {
		return nil, ErrMissingObjectType
	}
	if len(env.Parents) > 0 && env.ObjectType != "" {
		return nil, ErrUnexpectedRootField
	}
	author, err := b.keys.PubKeyFromAccount(env.Author)
	if err != nil {
		return nil, err
	}
	if verify {
		// verifying signature over the exact signed bytes
		res, err := author.Verify(signed.Body, signed.Signature)
		if err != nil {
			return nil, err
		}
		if !res {
			return nil, ErrInvalidSignature
		}
	}
	op = &Operation{
		Parents:    env.Parents,
		Id:         raw.Id,
		Clock:      env.Clock,
		Author:     author,
		Payload:    env.Payload,
		ObjectType: env.ObjectType,
		Nonce:      env.Nonce,
		Signature:  signed.Signature,
	}
	return
}

func (b *opBuilder) Marshal(op *Operation) (raw *RawOperation, err error) {
	env := envelope{
		ObjectType: op.ObjectType,
		Author:     op.Author.Account(),
		Parents:    op.Parents,
		Clock:      op.Clock,
		Nonce:      op.Nonce,
		Payload:    op.Payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return
	}
	rawBytes, err := json.Marshal(signedEnvelope{
		Body:      body,
		Signature: op.Signature,
	})
	if err != nil {
		return
	}
	return &RawOperation{Id: op.Id, Raw: rawBytes}, nil
}
