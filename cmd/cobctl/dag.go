package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cobkit/cobkit/cob/opgraph"
)

var dagCmd = &cobra.Command{
	Use:   "dag",
	Short: "inspect and exchange operation dags",
}

var dagShowCmd = &cobra.Command{
	Use:   "show <objectId>",
	Short: "print dag heads and shape",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		obj, err := rt.manager.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("hash:  %s\n", obj.Hash())
		for _, head := range obj.Heads() {
			fmt.Printf("head:  %s\n", head)
		}
		for _, id := range obj.MissingParents() {
			fmt.Printf("needs: %s\n", id)
		}
		return nil
	}),
}

var dagDotCmd = &cobra.Command{
	Use:   "dot <objectId>",
	Short: "render the dag in graphviz dot format",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		obj, err := rt.manager.Get(args[0])
		if err != nil {
			return err
		}
		data, err := obj.Graph(payloadParser{})
		if err != nil {
			return err
		}
		fmt.Println(data)
		return nil
	}),
}

// wireOp is one line of the export format: the raw self-certifying
// operation bytes plus its id for readability.
type wireOp struct {
	Id  string `json:"id"`
	Raw []byte `json:"raw"`
}

var dagExportCmd = &cobra.Command{
	Use:   "export <objectId>",
	Short: "write all stored operations to stdout, one JSON line each",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		ops, err := rt.manager.ListStoredOps(args[0])
		if err != nil {
			return err
		}
		w := bufio.NewWriter(os.Stdout)
		defer w.Flush()
		enc := json.NewEncoder(w)
		for _, raw := range ops {
			if err = enc.Encode(wireOp{Id: raw.Id, Raw: raw.Raw}); err != nil {
				return err
			}
		}
		return nil
	}),
}

var dagImportCmd = &cobra.Command{
	Use:   "import <objectId>",
	Short: "read JSON lines of operations from stdin and ingest them",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		dec := json.NewDecoder(bufio.NewReader(os.Stdin))
		var delivered int
		for dec.More() {
			var line wireOp
			if err := dec.Decode(&line); err != nil {
				return err
			}
			raw := &opgraph.RawOperation{Id: line.Id, Raw: line.Raw}
			if _, err := rt.manager.Get(args[0]); err != nil {
				// unknown object: the first line must be its root
				if _, err = rt.manager.OpenObject(raw); err != nil {
					return err
				}
				delivered++
				continue
			}
			if err := rt.manager.Deliver(ctx, args[0], raw); err != nil {
				return err
			}
			delivered++
		}
		fmt.Printf("delivered %d operations\n", delivered)
		return nil
	}),
}

// payloadParser labels graph nodes with a short action summary.
type payloadParser struct{}

func (payloadParser) ParseOperation(o *opgraph.Operation) ([]string, error) {
	if o.IsRoot() {
		return []string{"root " + o.ObjectType}, nil
	}
	switch {
	case json.Valid(o.Payload):
		var peek struct {
			Type     string `json:"type"`
			Key      string `json:"key"`
			Revision string `json:"revision"`
		}
		if err := json.Unmarshal(o.Payload, &peek); err != nil || peek.Type == "" {
			return []string{"op"}, nil
		}
		switch {
		case peek.Key != "":
			return []string{peek.Type + " " + peek.Key}, nil
		case peek.Revision != "":
			return []string{peek.Type + " " + short(peek.Revision)}, nil
		default:
			return []string{peek.Type}, nil
		}
	default:
		return []string{"op"}, nil
	}
}

func short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

func init() {
	dagCmd.AddCommand(dagShowCmd, dagDotCmd, dagExportCmd, dagImportCmd)
}
