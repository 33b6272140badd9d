package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cobkit/cobkit/cob"
	"github.com/cobkit/cobkit/cob/identity"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "manage identity documents",
}

var identityNewOpts struct {
	delegates  []string
	threshold  int
	visibility string
	allow      []string
}

var identityNewCmd = &cobra.Command{
	Use:   "new",
	Short: "create an identity object",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		doc := &identity.Document{
			Delegates:  identityNewOpts.delegates,
			Threshold:  identityNewOpts.threshold,
			Visibility: identity.Visibility(identityNewOpts.visibility),
			Allow:      identityNewOpts.allow,
		}
		if len(doc.Delegates) == 0 {
			acc := rt.account.Account()
			if acc == "" {
				return fmt.Errorf("no delegates given and no local key to default to")
			}
			doc.Delegates = []string{acc}
		}
		payload, err := identity.NewRootAction(doc)
		if err != nil {
			return err
		}
		obj, err := rt.manager.CreateObject(identity.TypeTag, payload)
		if err != nil {
			return err
		}
		fmt.Println(obj.Id())
		return nil
	}),
}

var identityProposeOpts struct {
	title       string
	description string
	delegates   []string
	threshold   int
	visibility  string
	allow       []string
	set         []string
}

var identityProposeCmd = &cobra.Command{
	Use:   "propose <objectId>",
	Short: "propose a document revision",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		obj, st, err := identityObject(rt, args[0])
		if err != nil {
			return err
		}
		doc := st.Current().Clone()
		if len(identityProposeOpts.delegates) > 0 {
			doc.Delegates = identityProposeOpts.delegates
		}
		if identityProposeOpts.threshold > 0 {
			doc.Threshold = identityProposeOpts.threshold
		}
		if identityProposeOpts.visibility != "" {
			doc.Visibility = identity.Visibility(identityProposeOpts.visibility)
		}
		if len(identityProposeOpts.allow) > 0 {
			doc.Allow = identityProposeOpts.allow
		}
		for _, kv := range identityProposeOpts.set {
			ns, key, value, err := parseFieldAssignment(kv)
			if err != nil {
				return err
			}
			doc.SetField(ns, key, value)
		}
		if err = st.CanPropose(doc); err != nil {
			return err
		}
		payload, err := identity.ProposeAction(identityProposeOpts.title, identityProposeOpts.description, doc)
		if err != nil {
			return err
		}
		raw, err := obj.Propose(payload)
		if err != nil {
			return err
		}
		fmt.Println(raw.Id)
		return nil
	}),
}

var identityEditOpts struct {
	title       string
	description string
}

var identityEditCmd = &cobra.Command{
	Use:   "edit <objectId> <revisionId>",
	Short: "amend an active revision",
	Args:  cobra.ExactArgs(2),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		obj, st, err := identityObject(rt, args[0])
		if err != nil {
			return err
		}
		if err = st.CanEdit(rt.account.Account(), args[1]); err != nil {
			return err
		}
		payload, err := identity.EditAction(args[1], identityEditOpts.title, identityEditOpts.description, nil)
		if err != nil {
			return err
		}
		_, err = obj.Propose(payload)
		return err
	}),
}

var identityListCmd = &cobra.Command{
	Use:   "list <objectId>",
	Short: "list revisions",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		_, st, err := identityObject(rt, args[0])
		if err != nil {
			return err
		}
		for _, rev := range st.Revisions {
			marker := " "
			if rev.Id == st.Accepted {
				marker = "*"
			}
			fmt.Printf("%s %-9s %s  %s\n", marker, rev.State, rev.Id, rev.Title)
		}
		return nil
	}),
}

var identityShowCmd = &cobra.Command{
	Use:   "show <objectId> [revisionId]",
	Short: "show a revision and its document",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		_, st, err := identityObject(rt, args[0])
		if err != nil {
			return err
		}
		revisionId := st.Accepted
		if len(args) == 2 {
			revisionId = args[1]
		}
		rev, err := st.Revision(revisionId)
		if err != nil {
			return err
		}
		fmt.Printf("revision:    %s\n", rev.Id)
		fmt.Printf("state:       %s\n", rev.State)
		fmt.Printf("author:      %s\n", rev.Author)
		if rev.Title != "" {
			fmt.Printf("title:       %s\n", rev.Title)
		}
		if rev.Description != "" {
			fmt.Printf("description: %s\n", rev.Description)
		}
		voters := make([]string, 0, len(rev.Votes))
		for acc := range rev.Votes {
			voters = append(voters, acc)
		}
		sort.Strings(voters)
		for _, acc := range voters {
			fmt.Printf("vote:        %s %s\n", rev.Votes[acc], acc)
		}
		canonical, err := rev.Document.Canonical()
		if err != nil {
			return err
		}
		fmt.Printf("document:    %s\n", canonical)
		return nil
	}),
}

func voteCmd(use, short string, action func(revisionId string) ([]byte, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <objectId> <revisionId>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			obj, st, err := identityObject(rt, args[0])
			if err != nil {
				return err
			}
			if err = st.CanVote(rt.account.Account(), args[1]); err != nil {
				return err
			}
			payload, err := action(args[1])
			if err != nil {
				return err
			}
			if _, err = obj.Propose(payload); err != nil {
				return err
			}
			rev, err := identityState(obj).Revision(args[1])
			if err != nil {
				return err
			}
			fmt.Println(rev.State)
			return nil
		}),
	}
}

var identityRedactCmd = &cobra.Command{
	Use:   "redact <objectId> <revisionId>",
	Short: "withdraw an active revision you authored",
	Args:  cobra.ExactArgs(2),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		obj, st, err := identityObject(rt, args[0])
		if err != nil {
			return err
		}
		if err = st.CanRedact(rt.account.Account(), args[1]); err != nil {
			return err
		}
		payload, err := identity.RedactAction(args[1])
		if err != nil {
			return err
		}
		_, err = obj.Propose(payload)
		return err
	}),
}

func identityObject(rt *runtime, objectId string) (*cob.Object, *identity.State, error) {
	obj, err := rt.manager.Get(objectId)
	if err != nil {
		return nil, nil, err
	}
	if obj.Type() != identity.TypeTag {
		return nil, nil, fmt.Errorf("object %s is a %s, not an identity", objectId, obj.Type())
	}
	return obj, identityState(obj), nil
}

func identityState(obj *cob.Object) *identity.State {
	return obj.State().(*identity.State)
}

// parseFieldAssignment splits "namespace/key=jsonValue"; a bare value is
// wrapped as a JSON string.
func parseFieldAssignment(kv string) (ns, key string, value json.RawMessage, err error) {
	var path string
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			path, value = kv[:i], json.RawMessage(kv[i+1:])
			break
		}
	}
	if path == "" {
		return "", "", nil, fmt.Errorf("expected namespace/key=value, got %q", kv)
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			ns, key = path[:i], path[i+1:]
			break
		}
	}
	if ns == "" || key == "" {
		return "", "", nil, fmt.Errorf("expected namespace/key=value, got %q", kv)
	}
	if !json.Valid(value) {
		quoted, _ := json.Marshal(string(value))
		value = quoted
	}
	return ns, key, value, nil
}

func init() {
	identityNewCmd.Flags().StringArrayVar(&identityNewOpts.delegates, "delegate", nil, "delegate account (repeatable, defaults to the local account)")
	identityNewCmd.Flags().IntVar(&identityNewOpts.threshold, "threshold", 1, "accept votes required")
	identityNewCmd.Flags().StringVar(&identityNewOpts.visibility, "visibility", "public", "public or private")
	identityNewCmd.Flags().StringArrayVar(&identityNewOpts.allow, "allow", nil, "account allowed to access a private object (repeatable)")

	identityProposeCmd.Flags().StringVar(&identityProposeOpts.title, "title", "", "revision title")
	identityProposeCmd.Flags().StringVar(&identityProposeOpts.description, "description", "", "revision description")
	identityProposeCmd.Flags().StringArrayVar(&identityProposeOpts.delegates, "delegate", nil, "replace the delegate set (repeatable)")
	identityProposeCmd.Flags().IntVar(&identityProposeOpts.threshold, "threshold", 0, "replace the threshold")
	identityProposeCmd.Flags().StringVar(&identityProposeOpts.visibility, "visibility", "", "replace the visibility")
	identityProposeCmd.Flags().StringArrayVar(&identityProposeOpts.allow, "allow", nil, "replace the allow list (repeatable)")
	identityProposeCmd.Flags().StringArrayVar(&identityProposeOpts.set, "set", nil, "set a payload field, namespace/key=value (repeatable, value null deletes)")

	identityEditCmd.Flags().StringVar(&identityEditOpts.title, "title", "", "new title")
	identityEditCmd.Flags().StringVar(&identityEditOpts.description, "description", "", "new description")

	identityCmd.AddCommand(
		identityNewCmd,
		identityListCmd,
		identityShowCmd,
		identityProposeCmd,
		identityEditCmd,
		voteCmd("accept", "cast an accept vote", identity.AcceptAction),
		voteCmd("reject", "cast a reject vote", identity.RejectAction),
		identityRedactCmd,
	)
}
