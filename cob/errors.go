package cob

import "errors"

var (
	ErrUnknownObjectType  = errors.New("unknown object type")
	ErrObjectNotFound     = errors.New("object not found")
	ErrUnrecognizedAction = errors.New("unrecognized action")
	// ErrUnauthorized marks actions whose author has no right to the
	// effect; such operations stay in the dag but fold as no-ops
	ErrUnauthorized = errors.New("author is not authorized for this action")
	// ErrInvalidStateTransition marks actions that target a state that
	// does not admit them; they fold as no-ops
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrClosed                 = errors.New("object manager is closed")
)
