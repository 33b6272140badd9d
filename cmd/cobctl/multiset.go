package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cobkit/cobkit/cob/multiset"
)

var multisetCmd = &cobra.Command{
	Use:   "multiset",
	Short: "manage counted-set objects",
}

var multisetNewCmd = &cobra.Command{
	Use:   "new",
	Short: "create a multiset object",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		obj, err := rt.manager.CreateObject(multiset.TypeTag, []byte("null"))
		if err != nil {
			return err
		}
		fmt.Println(obj.Id())
		return nil
	}),
}

func multisetEditCmd(use, short string, action func(key string) ([]byte, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <objectId> <key>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			obj, err := rt.manager.Get(args[0])
			if err != nil {
				return err
			}
			payload, err := action(args[1])
			if err != nil {
				return err
			}
			if _, err = obj.Propose(payload); err != nil {
				return err
			}
			fmt.Println(obj.State().(multiset.State).Count(args[1]))
			return nil
		}),
	}
}

var multisetShowCmd = &cobra.Command{
	Use:   "show <objectId>",
	Short: "print key counts",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		obj, err := rt.manager.Get(args[0])
		if err != nil {
			return err
		}
		st, ok := obj.State().(multiset.State)
		if !ok {
			return fmt.Errorf("object %s is a %s, not a multiset", args[0], obj.Type())
		}
		keys := st.Keys()
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%6d %s\n", st.Count(key), key)
		}
		return nil
	}),
}

func init() {
	multisetCmd.AddCommand(
		multisetNewCmd,
		multisetEditCmd("add", "add one occurrence of a key", multiset.AddAction),
		multisetEditCmd("remove", "remove one occurrence of a key", multiset.RemoveAction),
		multisetShowCmd,
	)
}
