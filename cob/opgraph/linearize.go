package opgraph

import (
	"strings"

	"github.com/huandu/skiplist"
)

// orderKey breaks ties among causally concurrent operations: ascending
// clock first, then id compared as a fixed-width byte string.
type orderKey struct {
	clock uint64
	id    string
}

var opOrder = skiplist.GreaterThanFunc(func(lhs, rhs interface{}) int {
	a, b := lhs.(orderKey), rhs.(orderKey)
	if a.clock != b.clock {
		if a.clock < b.clock {
			return -1
		}
		return 1
	}
	return strings.Compare(a.id, b.id)
})

// Linearize produces the deterministic total order over the attached set:
// parents always precede children, and concurrent operations are ordered
// by ascending (clock, id). Two replicas holding the same operation set
// produce the identical sequence regardless of arrival order.
//
// The frontier of ready operations is kept in a skip list keyed by
// orderKey, so the minimum is always popped first.
func (d *Dag) Linearize() []*Operation {
	if d.root == nil {
		return nil
	}
	remaining := make(map[string]int, len(d.attached))
	for id, o := range d.attached {
		remaining[id] = len(o.Previous)
	}
	frontier := skiplist.New(opOrder)
	frontier.Set(orderKey{clock: d.root.Clock, id: d.root.Id}, d.root)

	res := make([]*Operation, 0, len(d.attached))
	for frontier.Len() > 0 {
		front := frontier.Front()
		frontier.Remove(front.Key())
		o := front.Value.(*Operation)
		res = append(res, o)
		for _, next := range o.Next {
			remaining[next.Id]--
			if remaining[next.Id] == 0 {
				frontier.Set(orderKey{clock: next.Clock, id: next.Id}, next)
			}
		}
	}
	return res
}

// IterateOrdered walks the linearized sequence until f returns false.
func (d *Dag) IterateOrdered(f func(o *Operation) (isContinue bool)) {
	for _, o := range d.Linearize() {
		if !f(o) {
			return
		}
	}
}
