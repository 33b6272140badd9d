//go:build (linux || darwin) && !android && !ios && !nographviz && (amd64 || arm64)
// +build linux darwin
// +build !android
// +build !ios
// +build !nographviz
// +build amd64 arm64

package opgraph

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// DescriptionParser renders an operation payload into short symbols for
// the graph labels.
type DescriptionParser interface {
	ParseOperation(o *Operation) ([]string, error)
}

// Graph renders the dag, pending operations included, in graphviz dot
// format for debugging.
func (d *Dag) Graph(parser DescriptionParser) (data string, err error) {
	var order = make(map[string]string)
	var seq = 0
	d.IterateOrdered(func(o *Operation) (isContinue bool) {
		order[o.Id] = fmt.Sprint(seq)
		seq++
		return true
	})
	g := graphviz.New()
	defer g.Close()
	graph, err := g.Graph()
	if err != nil {
		return
	}
	defer func() {
		err = graph.Close()
	}()
	var nodes = make(map[string]*cgraph.Node)
	var addOp = func(o *Operation) error {
		n, e := graph.CreateNode(o.Id)
		if e != nil {
			return e
		}
		n.SetStyle(cgraph.FilledNodeStyle)
		nodes[o.Id] = n
		ord := order[o.Id]
		if ord == "" {
			ord = "pending"
		}
		symbs, err := parser.ParseOperation(o)
		if err != nil {
			return err
		}
		label := fmt.Sprintf("Id: %s\nOrd: %s\nClock: %d\nOps: %s\n",
			o.Id,
			ord,
			o.Clock,
			strings.Join(symbs, ","),
		)
		n.SetLabel(label)
		return nil
	}
	for _, o := range d.attached {
		if err = addOp(o); err != nil {
			return
		}
	}
	for _, o := range d.unAttached {
		if err = addOp(o); err != nil {
			return
		}
	}
	var getNode = func(id string) (*cgraph.Node, error) {
		if n, ok := nodes[id]; ok {
			return n, nil
		}
		n, err := graph.CreateNode(fmt.Sprintf("%s: not in dag", id))
		if err != nil {
			return nil, err
		}
		nodes[id] = n
		return n, nil
	}
	var addLinks = func(o *Operation) error {
		for _, parentId := range o.Parents {
			self, e := getNode(o.Id)
			if e != nil {
				return e
			}
			prev, e := getNode(parentId)
			if e != nil {
				return e
			}
			_, e = graph.CreateEdge("", self, prev)
			if e != nil {
				return e
			}
		}
		return nil
	}
	for _, o := range d.attached {
		if err = addLinks(o); err != nil {
			return
		}
	}
	for _, o := range d.unAttached {
		if err = addLinks(o); err != nil {
			return
		}
	}

	var buf bytes.Buffer
	if err = g.Render(graph, "dot", &buf); err != nil {
		return
	}
	return buf.String(), nil
}
