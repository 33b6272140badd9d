package opgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestOp(id string, clock uint64, parents ...string) *Operation {
	return &Operation{Id: id, Clock: clock, Parents: parents}
}

func ids(ops []*Operation) []string {
	out := make([]string, 0, len(ops))
	for _, o := range ops {
		out = append(out, o.Id)
	}
	return out
}

func TestDagAdd(t *testing.T) {
	t.Run("root attaches first", func(t *testing.T) {
		d := NewDag()
		attached := d.Add(newTestOp("root", 0))
		require.Equal(t, []string{"root"}, ids(attached))
		require.Equal(t, "root", d.RootId())
		require.Equal(t, []string{"root"}, d.Heads())
	})

	t.Run("ops before the root are parked", func(t *testing.T) {
		d := NewDag()
		attached := d.Add(newTestOp("a", 1, "root"))
		require.Empty(t, attached)
		require.True(t, d.HasPending("a"))
		require.Equal(t, 0, d.Len())

		attached = d.Add(newTestOp("root", 0))
		require.Equal(t, []string{"root", "a"}, ids(attached))
		require.False(t, d.HasPending("a"))
		require.Equal(t, []string{"a"}, d.Heads())
	})

	t.Run("a chain parked before the root promotes together", func(t *testing.T) {
		d := NewDag()
		d.Add(newTestOp("b", 2, "a"))
		d.Add(newTestOp("a", 1, "root"))
		require.Equal(t, 0, d.Len())
		require.Equal(t, 2, d.PendingLen())

		attached := d.Add(newTestOp("root", 0))
		require.Equal(t, []string{"root", "a", "b"}, ids(attached))
		require.Equal(t, 0, d.PendingLen())
		require.Equal(t, []string{"b"}, d.Heads())
	})

	t.Run("missing parent parks and promotion cascades", func(t *testing.T) {
		d := NewDag()
		d.Add(newTestOp("root", 0))
		attached := d.Add(
			newTestOp("c", 3, "b"),
			newTestOp("d", 4, "c"),
		)
		require.Empty(t, attached)
		require.Equal(t, 2, d.PendingLen())
		require.Equal(t, []string{"b"}, d.MissingParents())

		attached = d.Add(newTestOp("b", 2, "a"), newTestOp("a", 1, "root"))
		require.Equal(t, 5, d.Len())
		require.Equal(t, 0, d.PendingLen())
		require.ElementsMatch(t, []string{"a", "b", "c", "d"}, ids(attached))
		require.Equal(t, []string{"d"}, d.Heads())
		require.Empty(t, d.MissingParents())
	})

	t.Run("duplicates are ignored", func(t *testing.T) {
		d := NewDag()
		d.Add(newTestOp("root", 0))
		d.Add(newTestOp("a", 1, "root"))
		attached := d.Add(newTestOp("a", 1, "root"))
		require.Empty(t, attached)
		require.Equal(t, 2, d.Len())

		d.Add(newTestOp("x", 5, "missing"))
		attached = d.Add(newTestOp("x", 5, "missing"))
		require.Empty(t, attached)
		require.Equal(t, 1, d.PendingLen())
	})

	t.Run("a second root is invalid", func(t *testing.T) {
		d := NewDag()
		d.Add(newTestOp("root", 0))
		attached := d.Add(newTestOp("other", 0))
		require.Empty(t, attached)
		require.False(t, d.Has("other"))
		require.Equal(t, 1, d.Len())
	})

	t.Run("merge collapses branch heads", func(t *testing.T) {
		d := NewDag()
		d.Add(newTestOp("root", 0))
		d.Add(newTestOp("a", 1, "root"), newTestOp("b", 1, "root"))
		require.Equal(t, []string{"a", "b"}, d.Heads())

		d.Add(newTestOp("m", 2, "a", "b"))
		require.Equal(t, []string{"m"}, d.Heads())
	})
}

func TestDagRemoveInvalid(t *testing.T) {
	t.Run("removes attached descendants", func(t *testing.T) {
		d := NewDag()
		d.Add(newTestOp("root", 0))
		d.Add(
			newTestOp("a", 1, "root"),
			newTestOp("b", 2, "a"),
			newTestOp("c", 1, "root"),
		)
		d.RemoveInvalid("a")
		require.False(t, d.Has("a"))
		require.False(t, d.Has("b"))
		require.True(t, d.Has("c"))
		require.Equal(t, []string{"c"}, d.Heads())
	})

	t.Run("removes pending descendants through the wait list", func(t *testing.T) {
		d := NewDag()
		d.Add(newTestOp("root", 0))
		d.Add(newTestOp("a", 1, "root"))
		d.Add(newTestOp("c", 3, "b"))
		require.True(t, d.HasPending("c"))

		d.RemoveInvalid("b")
		require.False(t, d.HasPending("c"))
		require.Equal(t, 0, d.PendingLen())

		// removed ids never come back
		attached := d.Add(newTestOp("b", 2, "a"))
		require.Empty(t, attached)
		require.False(t, d.Has("b"))
	})
}

func TestDagHash(t *testing.T) {
	build := func(order ...*Operation) *Dag {
		d := NewDag()
		d.Add(order...)
		return d
	}
	root := func() *Operation { return newTestOp("root", 0) }

	d1 := build(root(), newTestOp("a", 1, "root"), newTestOp("b", 1, "root"), newTestOp("m", 2, "a", "b"))
	d2 := build(newTestOp("m", 2, "a", "b"), newTestOp("b", 1, "root"), newTestOp("a", 1, "root"), root())
	require.Equal(t, d1.Hash(), d2.Hash())
	require.Equal(t, d1.String(), d2.String())

	d3 := build(root(), newTestOp("a", 1, "root"))
	require.NotEqual(t, d1.Hash(), d3.Hash())
}
