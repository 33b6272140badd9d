package identity

import (
	"fmt"

	"github.com/cobkit/cobkit/cob"
)

// The fold never fails on an unauthorized or out-of-order action; it
// just records it without effect. These predicates re-check the same
// rules the fold applies so callers can tell a user why an action would
// have no effect before signing it.

// CanVote reports whether actor's vote on the revision would count.
func (s *State) CanVote(actor, revisionId string) error {
	rev, err := s.Revision(revisionId)
	if err != nil {
		return err
	}
	if rev.State != RevisionActive {
		return fmt.Errorf("%w: revision is %s", cob.ErrInvalidStateTransition, rev.State)
	}
	if !s.Current().IsDelegate(actor) {
		return fmt.Errorf("%w: %s is not a delegate", cob.ErrUnauthorized, actor)
	}
	return nil
}

// CanEdit reports whether actor may amend the revision.
func (s *State) CanEdit(actor, revisionId string) error {
	rev, err := s.Revision(revisionId)
	if err != nil {
		return err
	}
	if rev.State != RevisionActive {
		return fmt.Errorf("%w: revision is %s", cob.ErrInvalidStateTransition, rev.State)
	}
	if rev.Author != actor {
		return fmt.Errorf("%w: only the author may edit", cob.ErrUnauthorized)
	}
	return nil
}

// CanRedact reports whether actor may withdraw the revision.
func (s *State) CanRedact(actor, revisionId string) error {
	rev, err := s.Revision(revisionId)
	if err != nil {
		return err
	}
	if rev.State != RevisionActive {
		return fmt.Errorf("%w: revision is %s", cob.ErrInvalidStateTransition, rev.State)
	}
	if rev.Author != actor {
		return fmt.Errorf("%w: only the author may redact", cob.ErrUnauthorized)
	}
	return nil
}

// CanPropose reports whether the proposal would take effect. Any actor
// may propose, but a document identical to the accepted one is refused
// up front.
func (s *State) CanPropose(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if s.Current().Equal(doc) {
		return ErrNoOpProposal
	}
	return nil
}
