package identity

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/cobkit/cobkit/app/logger"
	"github.com/cobkit/cobkit/cob"
	"github.com/cobkit/cobkit/cob/opgraph"
)

var log = logger.NewNamed("cob.identity")

type RevisionState string

const (
	RevisionActive   RevisionState = "active"
	RevisionAccepted RevisionState = "accepted"
	RevisionRejected RevisionState = "rejected"
	RevisionRedacted RevisionState = "redacted"
)

type Vote string

const (
	VoteAccept Vote = "accept"
	VoteReject Vote = "reject"
)

// Revision is one proposed document version with its vote tally. Votes
// holds only delegate votes; a non-delegate's vote never enters the
// tally.
type Revision struct {
	Id          string
	Author      string
	Title       string
	Description string
	Document    *Document
	Votes       map[string]Vote
	State       RevisionState
}

func (r *Revision) countVotes(delegates []string, want Vote) (n int) {
	for _, del := range delegates {
		if r.Votes[del] == want {
			n++
		}
	}
	return n
}

// State is the materialized identity object: every revision in proposal
// order plus the currently accepted document. Accepted names the
// revision whose document is in force.
type State struct {
	Revisions []*Revision
	Accepted  string

	// RejectThreshold overrides the accepted document's threshold for
	// reject quorum when positive. Zero mirrors the accept threshold.
	RejectThreshold int

	byId map[string]*Revision
}

// Current returns the document in force.
func (s *State) Current() *Document {
	return s.byId[s.Accepted].Document
}

func (s *State) Revision(id string) (*Revision, error) {
	r, ok := s.byId[id]
	if !ok {
		return nil, ErrNoSuchRevision
	}
	return r, nil
}

func (s *State) rejectQuorum() int {
	if s.RejectThreshold > 0 {
		return s.RejectThreshold
	}
	return s.Current().Threshold
}

type reducer struct {
	rejectThreshold int
}

// New returns the identity reducer factory result with the default
// reject quorum, which mirrors the accept threshold.
func New() cob.Reducer {
	return &reducer{}
}

// NewWithRejectThreshold returns a factory whose reducers reject a
// revision once rejectThreshold delegate reject votes accumulate.
func NewWithRejectThreshold(rejectThreshold int) func() cob.Reducer {
	return func() cob.Reducer {
		return &reducer{rejectThreshold: rejectThreshold}
	}
}

func (r *reducer) TypeTag() string {
	return TypeTag
}

// NewState builds revision zero from the root operation. The initial
// document is accepted by construction: governance starts from it.
func (r *reducer) NewState(root *opgraph.Operation) (cob.State, error) {
	var ra RootAction
	if err := json.Unmarshal(root.Payload, &ra); err != nil {
		return nil, opgraph.ErrMalformedPayload
	}
	if ra.Document == nil {
		return nil, ErrMalformedDocument
	}
	if err := ra.Document.Validate(); err != nil {
		return nil, err
	}
	rev := &Revision{
		Id:       root.Id,
		Author:   root.Author.Account(),
		Document: ra.Document.Clone(),
		Votes:    map[string]Vote{},
		State:    RevisionAccepted,
	}
	return &State{
		Revisions:       []*Revision{rev},
		Accepted:        rev.Id,
		RejectThreshold: r.rejectThreshold,
		byId:            map[string]*Revision{rev.Id: rev},
	}, nil
}

func (r *reducer) ValidateAction(payload []byte) error {
	a, err := decodeAction(payload)
	if err != nil {
		return err
	}
	return validateAction(a)
}

// Apply folds one operation. Actions that are unauthorized or target a
// state that does not admit them fold as no-ops; the operation stays in
// history but leaves the tally untouched.
func (r *reducer) Apply(st cob.State, o *opgraph.Operation) cob.State {
	s := st.(*State)
	a, err := decodeAction(o.Payload)
	if err != nil {
		log.Debug("skipping undecodable action", zap.String("opId", o.Id))
		return s
	}
	switch a.Type {
	case actionPropose:
		r.applyPropose(s, a, o)
	case actionEdit:
		r.applyEdit(s, a, o)
	case actionAccept:
		r.applyVote(s, a, o, VoteAccept)
	case actionReject:
		r.applyVote(s, a, o, VoteReject)
	case actionRedact:
		r.applyRedact(s, a, o)
	default:
		log.Debug("skipping unrecognized action", zap.String("opId", o.Id))
	}
	return s
}

// applyPropose records a new active revision. Any actor may propose;
// when the author is a current delegate the proposal carries an
// implicit accept vote, which in a single-delegate document satisfies
// the quorum on the spot.
func (r *reducer) applyPropose(s *State, a Action, o *opgraph.Operation) {
	if a.Document == nil || a.Document.Validate() != nil {
		return
	}
	if _, ok := s.byId[o.Id]; ok {
		return
	}
	author := o.Author.Account()
	rev := &Revision{
		Id:          o.Id,
		Author:      author,
		Title:       a.Title,
		Description: a.Description,
		Document:    a.Document.Clone(),
		Votes:       map[string]Vote{},
		State:       RevisionActive,
	}
	if s.Current().IsDelegate(author) {
		rev.Votes[author] = VoteAccept
	}
	s.Revisions = append(s.Revisions, rev)
	s.byId[o.Id] = rev
	r.evaluate(s)
}

func (r *reducer) applyEdit(s *State, a Action, o *opgraph.Operation) {
	rev, ok := s.byId[a.Revision]
	if !ok || rev.State != RevisionActive || rev.Author != o.Author.Account() {
		return
	}
	if a.Title != "" {
		rev.Title = a.Title
	}
	if a.Description != "" {
		rev.Description = a.Description
	}
	if a.Document != nil && a.Document.Validate() == nil {
		rev.Document = a.Document.Clone()
	}
	r.evaluate(s)
}

// applyVote records a delegate's vote on an active revision. Delegacy
// is judged against the document in force when the vote folds, never
// against the revision being voted on.
func (r *reducer) applyVote(s *State, a Action, o *opgraph.Operation, v Vote) {
	rev, ok := s.byId[a.Revision]
	if !ok || rev.State != RevisionActive {
		return
	}
	author := o.Author.Account()
	if !s.Current().IsDelegate(author) {
		return
	}
	rev.Votes[author] = v
	r.evaluate(s)
}

func (r *reducer) applyRedact(s *State, a Action, o *opgraph.Operation) {
	rev, ok := s.byId[a.Revision]
	if !ok || rev.State != RevisionActive || rev.Author != o.Author.Account() {
		return
	}
	rev.State = RevisionRedacted
}

// evaluate re-runs quorum evaluation over all active revisions until a
// pass changes nothing. Accepting one revision installs its document,
// which can change the delegate set judging the remaining tallies, so a
// single pass is not enough.
func (r *reducer) evaluate(s *State) {
	for {
		changed := false
		for _, rev := range s.Revisions {
			if rev.State != RevisionActive {
				continue
			}
			policy := s.Current()
			if rev.countVotes(policy.Delegates, VoteAccept) >= policy.Threshold {
				rev.State = RevisionAccepted
				s.Accepted = rev.Id
				changed = true
				continue
			}
			if rev.countVotes(policy.Delegates, VoteReject) >= s.rejectQuorum() {
				rev.State = RevisionRejected
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}
