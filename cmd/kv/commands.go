package kv

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Set(args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	setECmd = &cobra.Command{
		Use:   "setE [key] [value] [ttl]",
		Short: "Sets the value for a key that expires after ttl (e.g. 30s, 24h)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := time.ParseDuration(args[2])
			if err != nil {
				return fmt.Errorf("ttl must be a duration: %w", err)
			}
			if err := rpcStore.SetE(args[0], []byte(args[1]), ttl); err != nil {
				return err
			}
			fmt.Println("setE successfully")
			return nil
		},
	}
	setEIfUnsetCmd = &cobra.Command{
		Use:   "setEIfUnset [key] [value] [ttl]",
		Short: "Sets the value for a key that expires after ttl if the key is not already set",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := time.ParseDuration(args[2])
			if err != nil {
				return fmt.Errorf("ttl must be a duration: %w", err)
			}
			if err := rpcStore.SetEIfUnset(args[0], []byte(args[1]), ttl); err != nil {
				return err
			}
			fmt.Println("setEIfUnset successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, ok, err := rpcStore.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, resp=%s\n", args[0], ok, resp)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key...]",
		Short: "Deletes key value pairs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Delete(args...); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := rpcStore.Has(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	mgetCmd = &cobra.Command{
		Use:   "mget [key...]",
		Short: "Reads the values of many keys in one request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := rpcStore.MGet(args)
			if err != nil {
				return err
			}
			for i, key := range args {
				fmt.Printf("key=%s, found=%v, resp=%s\n", key, values[i] != nil, values[i])
			}
			return nil
		},
	}
	msetCmd = &cobra.Command{
		Use:   "mset [key] [value] [key] [value]...",
		Short: "Writes many key value pairs in one request",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected key value pairs, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([]string, 0, len(args)/2)
			values := make([][]byte, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				keys = append(keys, args[i])
				values = append(values, []byte(args[i+1]))
			}
			if err := rpcStore.MSet(keys, values); err != nil {
				return err
			}
			fmt.Printf("mset %d pairs successfully\n", len(keys))
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the database of the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcStore.GetDBInfo()
			if err != nil {
				return err
			}
			data, err := json.Marshal(info)
			if err != nil {
				return err
			}
			util.PrintJSON(data)
			return nil
		},
	}
)
