package doc

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/docstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	docStore *docstore.Store

	// DocumentCommands represents the document store command group
	DocumentCommands = &cobra.Command{
		Use:               "doc",
		Short:             "Perform document store operations",
		PersistentPreRunE: setupDocStore,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupRPCClientFlags(DocumentCommands)

	key := "namespace"
	DocumentCommands.PersistentFlags().String(key, "ddoc", util.WrapString("Namespace of the document store, prefixes all keys"))

	key = "id-prop"
	DocumentCommands.PersistentFlags().String(key, docstore.DefaultIDProperty, util.WrapString("Name of the id property of the documents"))

	key = "guard"
	DocumentCommands.PersistentFlags().String(key, "local", util.WrapString("How index updates are serialized (local, distributed, none). Use distributed when several clients write to the same namespace"))

	key = "lock-ttl"
	DocumentCommands.PersistentFlags().Duration(key, 10*time.Second, util.WrapString("(distributed guard) ttl of the index lock"))

	key = "lock-timeout"
	DocumentCommands.PersistentFlags().Duration(key, 5*time.Second, util.WrapString("(distributed guard) how long to wait for the index lock"))

	DocumentCommands.AddCommand(postCmd)
	DocumentCommands.AddCommand(putCmd)
	DocumentCommands.AddCommand(getCmd)
	DocumentCommands.AddCommand(deleteCmd)
	DocumentCommands.AddCommand(msetCmd)
	DocumentCommands.AddCommand(flushCmd)
	DocumentCommands.AddCommand(flushAllCmd)
	DocumentCommands.AddCommand(indexCmd)
	DocumentCommands.AddCommand(perfCmd)
}

// setupDocStore connects to the shard and opens the document store
func setupDocStore(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	opts := []docstore.Option{docstore.WithIDProperty(viper.GetString("id-prop"))}
	switch guard := viper.GetString("guard"); guard {
	case "local":
	case "distributed":
		opts = append(opts, docstore.WithDistributedGuard(viper.GetDuration("lock-ttl"), viper.GetDuration("lock-timeout")))
	case "none":
		opts = append(opts, docstore.WithoutGuard())
	default:
		return fmt.Errorf("invalid guard %s (expected one of local, distributed, none)", guard)
	}

	backend, err := util.NewRPCStore()
	if err != nil {
		return err
	}

	docStore, err = docstore.New(backend, viper.GetString("namespace"), opts...)
	return err
}
