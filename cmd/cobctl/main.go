// cobctl is a local workbench for collaborative objects: it keeps a
// store of objects, signs operations with the configured account key and
// exposes the identity and multiset object types.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cobkit/cobkit/account"
	"github.com/cobkit/cobkit/app"
	"github.com/cobkit/cobkit/cob"
	"github.com/cobkit/cobkit/cob/identity"
	"github.com/cobkit/cobkit/cob/multiset"
	"github.com/cobkit/cobkit/config"
	"github.com/cobkit/cobkit/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "cobctl",
	Short:         "work with collaborative objects",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cobctl.yml", "path to the config file")
	rootCmd.AddCommand(identityCmd, multisetCmd, dagCmd, whoamiCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runtime bundles the started app with the components commands touch.
type runtime struct {
	app     *app.App
	manager *cob.Manager
	account account.Service
}

func openRuntime(ctx context.Context) (*runtime, error) {
	conf, err := config.NewFromFile(configPath)
	if os.IsNotExist(err) {
		conf = &config.Config{
			Account: config.Account{KeyPath: "cobctl.key"},
			Storage: config.Storage{Path: "cobctl.db"},
		}
	} else if err != nil {
		return nil, err
	}
	conf.Logger.ApplyGlobal()

	manager := cob.NewManager(cob.NewRegistry(identity.New, multiset.New))
	a := app.New().
		Register(conf).
		Register(account.New()).
		Register(storage.New()).
		Register(manager)
	if err = a.Start(ctx); err != nil {
		return nil, err
	}
	return &runtime{
		app:     a,
		manager: manager,
		account: a.MustComponent(account.CName).(account.Service),
	}, nil
}

func (rt *runtime) close(ctx context.Context) {
	if err := rt.app.Close(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
}

// withRuntime wraps a command body with app startup and shutdown.
func withRuntime(f func(ctx context.Context, rt *runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close(ctx)
		return f(ctx, rt, args)
	}
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "print the local account id",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
		acc := rt.account.Account()
		if acc == "" {
			return account.ErrNoKeyConfigured
		}
		fmt.Println(acc)
		return nil
	}),
}
