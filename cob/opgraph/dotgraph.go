//go:build (!linux && !darwin) || android || ios || nographviz || (!amd64 && !arm64)

package opgraph

import "fmt"

type DescriptionParser interface {
	ParseOperation(o *Operation) ([]string, error)
}

func (d *Dag) Graph(parser DescriptionParser) (data string, err error) {
	return "", fmt.Errorf("not supported")
}
