package identity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cobkit/cobkit/cob"
	"github.com/cobkit/cobkit/cob/opgraph"
)

const TypeTag = "xyz.cobkit.id"

var (
	ErrNoDelegates         = errors.New("document must name at least one delegate")
	ErrThresholdOutOfRange = errors.New("threshold must be between 1 and the delegate count")
	ErrMalformedDocument   = errors.New("malformed identity document")
	ErrNoSuchRevision      = errors.New("no such revision")
	ErrNoOpProposal        = errors.New("proposed document equals the accepted one")
)

const (
	actionPropose = "propose"
	actionEdit    = "edit"
	actionAccept  = "accept"
	actionReject  = "reject"
	actionRedact  = "redact"
)

// Action is the tagged payload of an identity operation. Which fields
// are meaningful depends on Type; the root operation carries only the
// initial Document.
type Action struct {
	Type string `json:"type"`

	// propose and edit
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Document    *Document `json:"document,omitempty"`

	// edit, accept, reject and redact address an existing revision
	Revision string `json:"revision,omitempty"`
}

// RootAction is the payload of the object's root operation: the initial
// document, accepted as revision zero.
type RootAction struct {
	Document *Document `json:"document"`
}

func decodeAction(payload []byte) (a Action, err error) {
	if err = json.Unmarshal(payload, &a); err != nil {
		return a, fmt.Errorf("%w: %v", opgraph.ErrMalformedPayload, err)
	}
	return a, nil
}

func validateAction(a Action) error {
	switch a.Type {
	case actionPropose:
		if a.Document == nil {
			return fmt.Errorf("%w: propose without document", opgraph.ErrMalformedPayload)
		}
		return a.Document.Validate()
	case actionEdit:
		if a.Revision == "" {
			return fmt.Errorf("%w: edit without revision", opgraph.ErrMalformedPayload)
		}
		if a.Document != nil {
			if err := a.Document.Validate(); err != nil {
				return err
			}
		}
		return nil
	case actionAccept, actionReject, actionRedact:
		if a.Revision == "" {
			return fmt.Errorf("%w: %s without revision", opgraph.ErrMalformedPayload, a.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", cob.ErrUnrecognizedAction, a.Type)
	}
}

// ProposeAction builds the payload proposing doc as a new revision.
func ProposeAction(title, description string, doc *Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(Action{
		Type:        actionPropose,
		Title:       title,
		Description: description,
		Document:    doc,
	})
}

// EditAction builds the payload amending an active revision. Nil doc
// leaves the proposed document unchanged.
func EditAction(revisionId, title, description string, doc *Document) ([]byte, error) {
	if doc != nil {
		if err := doc.Validate(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(Action{
		Type:        actionEdit,
		Revision:    revisionId,
		Title:       title,
		Description: description,
		Document:    doc,
	})
}

// AcceptAction builds the payload casting an accept vote.
func AcceptAction(revisionId string) ([]byte, error) {
	return json.Marshal(Action{Type: actionAccept, Revision: revisionId})
}

// RejectAction builds the payload casting a reject vote.
func RejectAction(revisionId string) ([]byte, error) {
	return json.Marshal(Action{Type: actionReject, Revision: revisionId})
}

// RedactAction builds the payload withdrawing an active revision.
func RedactAction(revisionId string) ([]byte, error) {
	return json.Marshal(Action{Type: actionRedact, Revision: revisionId})
}

// NewRootAction builds the root operation payload carrying the initial
// document.
func NewRootAction(doc *Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(RootAction{Document: doc})
}
