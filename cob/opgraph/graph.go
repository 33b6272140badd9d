package opgraph

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"sort"

	"github.com/cobkit/cobkit/util/slice"
)

// Dag holds the applied and pending operations of one object.
// Operations whose parents are all attached form the applied set; the
// rest wait in unAttached keyed through waitList until their parents
// arrive, at which point attachment cascades iteratively.
type Dag struct {
	root    *Operation
	headIds []string
	// attached ops are causally complete
	attached   map[string]*Operation
	unAttached map[string]*Operation
	// missed id -> list of dependency ids
	waitList   map[string][]string
	invalidOps map[string]struct{}

	// bufs
	addedBuf []*Operation
}

func NewDag() *Dag {
	return &Dag{
		attached:   make(map[string]*Operation),
		unAttached: make(map[string]*Operation),
		waitList:   make(map[string][]string),
		invalidOps: make(map[string]struct{}),
	}
}

func (d *Dag) RootId() string {
	if d.root != nil {
		return d.root.Id
	}
	return ""
}

func (d *Dag) Root() *Operation {
	return d.root
}

// Add inserts operations into the dag, attaching the ones whose parents
// are already attached. Attaching one operation may unblock many others
// through the wait list. The returned slice contains the operations that
// became attached as a result of this call. Duplicates are ignored.
func (d *Dag) Add(ops ...*Operation) (attached []*Operation) {
	d.addedBuf = d.addedBuf[:0]
	for _, o := range ops {
		// ignore existing
		if _, ok := d.attached[o.Id]; ok {
			continue
		} else if _, ok := d.unAttached[o.Id]; ok {
			continue
		} else if _, ok := d.invalidOps[o.Id]; ok {
			continue
		}
		d.add(o)
	}
	if len(d.addedBuf) != 0 {
		d.updateHeads()
	}
	return d.addedBuf
}

func (d *Dag) add(o *Operation) bool {
	if o == nil {
		return false
	}
	if d.root == nil {
		if !o.IsRoot() {
			// the root must arrive before anything can attach;
			// park the op until then
			d.unAttached[o.Id] = o
			for _, pid := range o.Parents {
				d.waitList[pid] = append(d.waitList[pid], o.Id)
			}
			return false
		}
		d.root = o
		// ops may be parked waiting for the root already
		d.attach(o, true)
		return true
	}
	if o.IsRoot() {
		// a second root belongs to another object
		d.invalidOps[o.Id] = struct{}{}
		return false
	}
	if len(o.Parents) > 1 {
		sort.Strings(o.Parents)
	}
	// attaching only if all parents are attached
	if d.canAttach(o, true) {
		d.attach(o, true)
		return true
	}
	d.unAttached[o.Id] = o
	return false
}

func (d *Dag) canAttach(o *Operation, addToWait bool) (attach bool) {
	attach = true
	for _, pid := range o.Parents {
		if _, ok := d.attached[pid]; ok {
			continue
		}
		attach = false
		if addToWait {
			// updating wait list for either unseen or unAttached parents
			d.waitList[pid] = append(d.waitList[pid], o.Id)
		}
	}
	return
}

// attach links the operation into the applied set and promotes every
// pending op it unblocks, cascading through an explicit worklist.
func (d *Dag) attach(o *Operation, newEl bool) {
	d.attachOne(o, newEl)
	worklist := []string{o.Id}
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		waitIds, ok := d.waitList[id]
		if !ok {
			continue
		}
		delete(d.waitList, id)
		for _, wid := range waitIds {
			next, exists := d.unAttached[wid]
			if !exists {
				// already attached through another parent
				continue
			}
			if d.canAttach(next, false) {
				d.attachOne(next, false)
				worklist = append(worklist, wid)
			}
			// if we can't attach next, some other missing parent will
			// trigger attachment later
		}
	}
}

func (d *Dag) attachOne(o *Operation, newEl bool) {
	d.attached[o.Id] = o
	d.addedBuf = append(d.addedBuf, o)
	if !newEl {
		delete(d.unAttached, o.Id)
	}

	// add next to all parents
	for _, id := range o.Parents {
		// parent must already be attached if we attach this op
		prev := d.attached[id]
		o.Previous = append(o.Previous, prev)
		// keep Next sorted by id for deterministic iteration
		if len(prev.Next) == 0 || prev.Next[len(prev.Next)-1].Id <= o.Id {
			prev.Next = append(prev.Next, o)
		} else {
			insertIdx := 0
			for idx, el := range prev.Next {
				if el.Id >= o.Id {
					insertIdx = idx
					break
				}
			}
			prev.Next = append(prev.Next[:insertIdx+1], prev.Next[insertIdx:]...)
			prev.Next[insertIdx] = o
		}
	}
}

// RemoveInvalid removes the operation and all its descendants, attached
// or pending. Further additions of the same ids are ignored.
func (d *Dag) RemoveInvalid(id string) {
	stack := []string{id}
	for len(stack) > 0 {
		var exists bool
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, exists = d.invalidOps[top]; exists {
			continue
		}

		var rem *Operation
		d.invalidOps[top] = struct{}{}
		if rem, exists = d.unAttached[top]; exists {
			delete(d.unAttached, top)
		} else if rem, exists = d.attached[top]; exists {
			for _, pid := range rem.Parents {
				prev, ok := d.attached[pid]
				if !ok {
					continue
				}
				prev.Next = slice.DiscardFromSlice(prev.Next, func(o *Operation) bool {
					return o.Id == top
				})
			}
			delete(d.attached, top)
		}
		if rem != nil {
			for _, el := range rem.Next {
				stack = append(stack, el.Id)
			}
		}
		// pending descendants reference removed ops only through the
		// wait list; the removed id itself may be one we never held
		for _, wid := range d.waitList[top] {
			stack = append(stack, wid)
		}
		delete(d.waitList, top)
	}
	d.updateHeads()
}

func (d *Dag) updateHeads() {
	var newHeadIds []string
	for id, o := range d.attached {
		if len(o.Next) == 0 {
			newHeadIds = append(newHeadIds, id)
		}
	}
	sort.Strings(newHeadIds)
	d.headIds = newHeadIds
}

// MissingParents returns the ids the pending buffer is waiting for,
// i.e. the ids an external transport should fetch next.
func (d *Dag) MissingParents() (missing []string) {
	for id := range d.waitList {
		if _, ok := d.attached[id]; ok {
			continue
		}
		if _, ok := d.unAttached[id]; ok {
			continue
		}
		missing = append(missing, id)
	}
	sort.Strings(missing)
	return
}

func (d *Dag) Has(id string) bool {
	_, ok := d.attached[id]
	return ok
}

func (d *Dag) HasPending(id string) bool {
	_, ok := d.unAttached[id]
	return ok
}

func (d *Dag) Get(id string) *Operation {
	return d.attached[id]
}

func (d *Dag) Len() int {
	return len(d.attached)
}

func (d *Dag) PendingLen() int {
	return len(d.unAttached)
}

func (d *Dag) Heads() []string {
	return d.headIds
}

// Hash is a digest over the linearized operation set, useful to compare
// replicas cheaply.
func (d *Dag) Hash() string {
	h := md5.New()
	n := 0
	for _, o := range d.Linearize() {
		n++
		fmt.Fprintf(h, "-%s", o.Id)
	}
	return fmt.Sprintf("%d-%x", n, h.Sum(nil))
}

func (d *Dag) String() string {
	var buf = bytes.NewBuffer(nil)
	for _, o := range d.Linearize() {
		buf.WriteString(o.Id)
		if len(o.Next) > 1 {
			buf.WriteString("-<")
		} else if len(o.Next) > 0 {
			buf.WriteString("->")
		} else {
			buf.WriteString("-|")
		}
	}
	return buf.String()
}
