package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobkit/cobkit/account"
	"github.com/cobkit/cobkit/app"
	"github.com/cobkit/cobkit/cob"
	"github.com/cobkit/cobkit/cob/authz"
	"github.com/cobkit/cobkit/cob/opgraph"
	"github.com/cobkit/cobkit/config"
	"github.com/cobkit/cobkit/storage"
	"github.com/cobkit/cobkit/util/crypto"
)

func newIdentityDeps(t *testing.T) (cob.Deps, string) {
	priv, pub, err := crypto.GenerateRandomEd25519KeyPair()
	require.NoError(t, err)
	builder := opgraph.NewBuilder(crypto.NewKeyStorage())
	return cob.Deps{
		Builder:  builder,
		Registry: cob.NewRegistry(New),
		Checker:  authz.NewChecker(builder),
		Key:      priv,
		Store:    storage.NewInMemoryStore(),
	}, pub.Account()
}

func soleDelegateDoc(acc string) *Document {
	return &Document{
		Delegates:  []string{acc},
		Threshold:  1,
		Visibility: VisibilityPublic,
	}
}

func TestIdentityObject(t *testing.T) {
	t.Run("create from the root document", func(t *testing.T) {
		deps, acc := newIdentityDeps(t)
		doc := soleDelegateDoc(acc)
		payload, err := NewRootAction(doc)
		require.NoError(t, err)

		obj, err := cob.NewObject(TypeTag, payload, deps)
		require.NoError(t, err)
		st := obj.State().(*State)
		require.True(t, st.Current().Equal(doc))
		rev, err := st.Revision(obj.Id())
		require.NoError(t, err)
		require.Equal(t, RevisionAccepted, rev.State)
	})

	t.Run("create rejects a payload without a document", func(t *testing.T) {
		deps, _ := newIdentityDeps(t)
		_, err := cob.NewObject(TypeTag, []byte(`{}`), deps)
		require.ErrorIs(t, err, ErrMalformedDocument)
	})

	t.Run("sole delegate proposal takes effect immediately", func(t *testing.T) {
		deps, acc := newIdentityDeps(t)
		rootPayload, err := NewRootAction(soleDelegateDoc(acc))
		require.NoError(t, err)
		obj, err := cob.NewObject(TypeTag, rootPayload, deps)
		require.NoError(t, err)

		amended := soleDelegateDoc(acc)
		amended.Visibility = VisibilityPrivate
		payload, err := ProposeAction("go private", "", amended)
		require.NoError(t, err)
		_, err = obj.Propose(payload)
		require.NoError(t, err)

		st := obj.State().(*State)
		require.Equal(t, VisibilityPrivate, st.Current().Visibility)
	})

	t.Run("replica opened from the root converges", func(t *testing.T) {
		deps, acc := newIdentityDeps(t)
		rootPayload, err := NewRootAction(soleDelegateDoc(acc))
		require.NoError(t, err)
		obj, err := cob.NewObject(TypeTag, rootPayload, deps)
		require.NoError(t, err)

		amended := soleDelegateDoc(acc)
		amended.Visibility = VisibilityPrivate
		payload, err := ProposeAction("go private", "", amended)
		require.NoError(t, err)
		proposeRaw, err := obj.Propose(payload)
		require.NoError(t, err)

		rootRaw, err := deps.Store.GetOp(obj.Id(), obj.Id())
		require.NoError(t, err)

		replicaDeps, _ := newIdentityDeps(t)
		replica, err := cob.OpenObject(rootRaw, replicaDeps)
		require.NoError(t, err)
		status, err := replica.Ingest(proposeRaw)
		require.NoError(t, err)
		require.Equal(t, cob.StatusApplied, status)

		require.Equal(t, obj.Hash(), replica.Hash())
		require.True(t, obj.State().(*State).Current().
			Equal(replica.State().(*State).Current()))
	})

	t.Run("manager creates identity objects", func(t *testing.T) {
		dir := t.TempDir()
		conf := &config.Config{
			Account: config.Account{KeyPath: filepath.Join(dir, "test.key")},
		}
		m := cob.NewManager(cob.NewRegistry(New))
		a := app.New().
			Register(conf).
			Register(account.New()).
			Register(storage.New()).
			Register(m)
		require.NoError(t, a.Start(context.Background()))
		defer func() {
			require.NoError(t, a.Close(context.Background()))
		}()

		acc := a.MustComponent(account.CName).(account.Service).Account()
		payload, err := NewRootAction(soleDelegateDoc(acc))
		require.NoError(t, err)
		obj, err := m.CreateObject(TypeTag, payload)
		require.NoError(t, err)
		require.True(t, obj.State().(*State).Current().IsDelegate(acc))
	})
}
