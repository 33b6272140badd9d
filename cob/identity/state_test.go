package identity

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobkit/cobkit/cob"
	"github.com/cobkit/cobkit/cob/opgraph"
	"github.com/cobkit/cobkit/util/crypto"
)

type idFixture struct {
	accounts  map[string]string
	keys      map[string]crypto.PubKey
	byAccount map[string]crypto.PubKey
	nextOp    int
}

func newIdFixture(t *testing.T, names ...string) *idFixture {
	fx := &idFixture{
		accounts:  map[string]string{},
		keys:      map[string]crypto.PubKey{},
		byAccount: map[string]crypto.PubKey{},
	}
	for _, name := range names {
		_, pub, err := crypto.GenerateRandomEd25519KeyPair()
		require.NoError(t, err)
		fx.accounts[name] = pub.Account()
		fx.keys[name] = pub
		fx.byAccount[pub.Account()] = pub
	}
	return fx
}

func (fx *idFixture) doc(threshold int, delegates ...string) *Document {
	d := &Document{Threshold: threshold, Visibility: VisibilityPublic}
	for _, name := range delegates {
		d.Delegates = append(d.Delegates, fx.accounts[name])
	}
	return d
}

func (fx *idFixture) op(author string, payload []byte) *opgraph.Operation {
	fx.nextOp++
	return &opgraph.Operation{
		Id:      fmt.Sprintf("op%d", fx.nextOp),
		Author:  fx.keys[author],
		Payload: payload,
	}
}

func (fx *idFixture) newState(t *testing.T, r cob.Reducer, doc *Document) *State {
	payload, err := NewRootAction(doc)
	require.NoError(t, err)
	st, err := r.NewState(&opgraph.Operation{
		Id:      "root",
		Author:  fx.byAccount[doc.Delegates[0]],
		Payload: payload,
	})
	require.NoError(t, err)
	return st.(*State)
}

func (fx *idFixture) propose(t *testing.T, r cob.Reducer, s *State, author string, doc *Document) *Revision {
	payload, err := ProposeAction("update", "", doc)
	require.NoError(t, err)
	op := fx.op(author, payload)
	r.Apply(s, op)
	rev, err := s.Revision(op.Id)
	require.NoError(t, err)
	return rev
}

func (fx *idFixture) vote(t *testing.T, r cob.Reducer, s *State, author, revisionId string, v Vote) {
	var (
		payload []byte
		err     error
	)
	if v == VoteAccept {
		payload, err = AcceptAction(revisionId)
	} else {
		payload, err = RejectAction(revisionId)
	}
	require.NoError(t, err)
	r.Apply(s, fx.op(author, payload))
}

func TestStateMachine(t *testing.T) {
	t.Run("root document is accepted as revision zero", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b", "c")
		r := New()
		s := fx.newState(t, r, fx.doc(2, "a", "b", "c"))
		require.Equal(t, "root", s.Accepted)
		require.Len(t, s.Revisions, 1)
		require.Equal(t, RevisionAccepted, s.Revisions[0].State)
		require.Equal(t, 2, s.Current().Threshold)
	})

	t.Run("quorum acceptance with three delegates", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b", "c")
		r := New()
		s := fx.newState(t, r, fx.doc(2, "a", "b", "c"))

		rev := fx.propose(t, r, s, "a", fx.doc(3, "a", "b", "c"))
		require.Equal(t, RevisionActive, rev.State)
		require.Equal(t, VoteAccept, rev.Votes[fx.accounts["a"]])

		fx.vote(t, r, s, "b", rev.Id, VoteAccept)
		require.Equal(t, RevisionAccepted, rev.State)
		require.Equal(t, rev.Id, s.Accepted)
		require.Equal(t, 3, s.Current().Threshold)
	})

	t.Run("self quorum with a single delegate", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b")
		r := New()
		s := fx.newState(t, r, fx.doc(1, "a"))

		rev := fx.propose(t, r, s, "a", fx.doc(1, "a", "b"))
		require.Equal(t, RevisionAccepted, rev.State)
		require.True(t, s.Current().IsDelegate(fx.accounts["b"]))
	})

	t.Run("non delegate proposal carries no implicit vote", func(t *testing.T) {
		fx := newIdFixture(t, "a", "x")
		r := New()
		s := fx.newState(t, r, fx.doc(1, "a"))

		rev := fx.propose(t, r, s, "x", fx.doc(1, "a", "x"))
		require.Equal(t, RevisionActive, rev.State)
		require.Empty(t, rev.Votes)

		fx.vote(t, r, s, "a", rev.Id, VoteAccept)
		require.Equal(t, RevisionAccepted, rev.State)
	})

	t.Run("unauthorized vote is inert", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b", "x")
		r := New()
		s := fx.newState(t, r, fx.doc(2, "a", "b"))

		rev := fx.propose(t, r, s, "a", fx.doc(1, "a"))
		fx.vote(t, r, s, "x", rev.Id, VoteAccept)
		require.Equal(t, RevisionActive, rev.State)
		_, voted := rev.Votes[fx.accounts["x"]]
		require.False(t, voted)
	})

	t.Run("reject quorum mirrors accept threshold", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b", "c")
		r := New()
		s := fx.newState(t, r, fx.doc(2, "a", "b", "c"))

		rev := fx.propose(t, r, s, "a", fx.doc(3, "a", "b", "c"))
		fx.vote(t, r, s, "b", rev.Id, VoteReject)
		require.Equal(t, RevisionActive, rev.State)

		fx.vote(t, r, s, "c", rev.Id, VoteReject)
		require.Equal(t, RevisionRejected, rev.State)
	})

	t.Run("configurable reject threshold", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b", "c")
		r := NewWithRejectThreshold(1)()
		s := fx.newState(t, r, fx.doc(2, "a", "b", "c"))

		rev := fx.propose(t, r, s, "a", fx.doc(3, "a", "b", "c"))
		fx.vote(t, r, s, "b", rev.Id, VoteReject)
		require.Equal(t, RevisionRejected, rev.State)
	})

	t.Run("redaction by the author while active", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b")
		r := New()
		s := fx.newState(t, r, fx.doc(2, "a", "b"))

		rev := fx.propose(t, r, s, "a", fx.doc(1, "a"))
		payload, err := RedactAction(rev.Id)
		require.NoError(t, err)

		r.Apply(s, fx.op("b", payload))
		require.Equal(t, RevisionActive, rev.State, "non author cannot redact")

		r.Apply(s, fx.op("a", payload))
		require.Equal(t, RevisionRedacted, rev.State)
	})

	t.Run("redaction guard on accepted revisions", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b")
		r := New()
		s := fx.newState(t, r, fx.doc(2, "a", "b"))

		rev := fx.propose(t, r, s, "a", fx.doc(1, "a"))
		fx.vote(t, r, s, "b", rev.Id, VoteAccept)
		require.Equal(t, RevisionAccepted, rev.State)

		payload, err := RedactAction(rev.Id)
		require.NoError(t, err)
		r.Apply(s, fx.op("a", payload))
		require.Equal(t, RevisionAccepted, rev.State)
	})

	t.Run("edits apply only to active revisions by their author", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b")
		r := New()
		s := fx.newState(t, r, fx.doc(2, "a", "b"))

		rev := fx.propose(t, r, s, "a", fx.doc(1, "a"))
		payload, err := EditAction(rev.Id, "renamed", "better words", nil)
		require.NoError(t, err)

		r.Apply(s, fx.op("b", payload))
		require.Equal(t, "update", rev.Title)

		r.Apply(s, fx.op("a", payload))
		require.Equal(t, "renamed", rev.Title)
		require.Equal(t, "better words", rev.Description)

		fx.vote(t, r, s, "b", rev.Id, VoteAccept)
		payload, err = EditAction(rev.Id, "too late", "", nil)
		require.NoError(t, err)
		r.Apply(s, fx.op("a", payload))
		require.Equal(t, "renamed", rev.Title)
	})

	t.Run("acceptance installs the new policy for later tallies", func(t *testing.T) {
		fx := newIdFixture(t, "a", "b", "c")
		r := New()
		s := fx.newState(t, r, fx.doc(2, "a", "b"))

		// both revisions proposed under the two-delegate document
		first := fx.propose(t, r, s, "a", fx.doc(1, "c"))
		second := fx.propose(t, r, s, "b", fx.doc(2, "a", "b", "c"))

		// c is not a delegate yet, its vote on second must not count
		fx.vote(t, r, s, "c", second.Id, VoteAccept)
		require.Equal(t, RevisionActive, second.State)

		// accepting first hands governance to c alone
		fx.vote(t, r, s, "b", first.Id, VoteAccept)
		require.Equal(t, RevisionAccepted, first.State)
		require.Equal(t, []string{fx.accounts["c"]}, s.Current().Delegates)

		// now c's vote decides second under the new single-delegate policy
		fx.vote(t, r, s, "c", second.Id, VoteAccept)
		require.Equal(t, RevisionAccepted, second.State)
		require.Equal(t, second.Id, s.Accepted)
	})

	t.Run("votes on unknown or settled revisions are no-ops", func(t *testing.T) {
		fx := newIdFixture(t, "a")
		r := New()
		s := fx.newState(t, r, fx.doc(1, "a"))

		fx.vote(t, r, s, "a", "missing", VoteAccept)
		require.Len(t, s.Revisions, 1)

		fx.vote(t, r, s, "a", "root", VoteReject)
		require.Equal(t, RevisionAccepted, s.Revisions[0].State)
	})

	t.Run("malformed payload folds as a no-op", func(t *testing.T) {
		fx := newIdFixture(t, "a")
		r := New()
		s := fx.newState(t, r, fx.doc(1, "a"))

		r.Apply(s, fx.op("a", []byte("{broken")))
		r.Apply(s, fx.op("a", []byte(`{"type":"unknown"}`)))
		require.Len(t, s.Revisions, 1)
	})
}

func TestValidateAction(t *testing.T) {
	fx := newIdFixture(t, "a")
	r := New()

	t.Run("unknown action tag", func(t *testing.T) {
		err := r.ValidateAction([]byte(`{"type":"explode"}`))
		require.ErrorIs(t, err, cob.ErrUnrecognizedAction)
	})

	t.Run("propose requires a valid document", func(t *testing.T) {
		err := r.ValidateAction([]byte(`{"type":"propose"}`))
		require.ErrorIs(t, err, opgraph.ErrMalformedPayload)

		payload, buildErr := json.Marshal(Action{Type: actionPropose, Document: &Document{
			Delegates:  []string{fx.accounts["a"]},
			Threshold:  5,
			Visibility: VisibilityPublic,
		}})
		require.NoError(t, buildErr)
		require.ErrorIs(t, r.ValidateAction(payload), ErrThresholdOutOfRange)
	})

	t.Run("votes require a revision id", func(t *testing.T) {
		require.ErrorIs(t, r.ValidateAction([]byte(`{"type":"accept"}`)), opgraph.ErrMalformedPayload)
		require.NoError(t, r.ValidateAction([]byte(`{"type":"accept","revision":"some"}`)))
	})
}

func TestValidatorPredicates(t *testing.T) {
	fx := newIdFixture(t, "a", "b", "x")
	r := New()
	s := fx.newState(t, r, fx.doc(2, "a", "b"))
	rev := fx.propose(t, r, s, "a", fx.doc(1, "a"))

	t.Run("vote", func(t *testing.T) {
		require.NoError(t, s.CanVote(fx.accounts["b"], rev.Id))
		require.ErrorIs(t, s.CanVote(fx.accounts["x"], rev.Id), cob.ErrUnauthorized)
		require.ErrorIs(t, s.CanVote(fx.accounts["b"], "missing"), ErrNoSuchRevision)
	})

	t.Run("edit and redact are author only", func(t *testing.T) {
		require.NoError(t, s.CanEdit(fx.accounts["a"], rev.Id))
		require.ErrorIs(t, s.CanEdit(fx.accounts["b"], rev.Id), cob.ErrUnauthorized)
		require.NoError(t, s.CanRedact(fx.accounts["a"], rev.Id))
		require.ErrorIs(t, s.CanRedact(fx.accounts["b"], rev.Id), cob.ErrUnauthorized)
	})

	t.Run("settled revisions admit nothing", func(t *testing.T) {
		fx.vote(t, r, s, "b", rev.Id, VoteAccept)
		require.Equal(t, RevisionAccepted, rev.State)
		require.ErrorIs(t, s.CanVote(fx.accounts["b"], rev.Id), cob.ErrInvalidStateTransition)
		require.ErrorIs(t, s.CanRedact(fx.accounts["a"], rev.Id), cob.ErrInvalidStateTransition)
	})

	t.Run("no-op proposal is refused", func(t *testing.T) {
		require.ErrorIs(t, s.CanPropose(s.Current()), ErrNoOpProposal)
		require.NoError(t, s.CanPropose(fx.doc(2, "a", "b")))
	})
}
