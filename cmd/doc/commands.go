package doc

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/docstore"
	"github.com/spf13/cobra"
)

var (
	postCmd = &cobra.Command{
		Use:   "post [model] [json]",
		Short: "Stores a new document under a generated id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseDocument(args[1])
			if err != nil {
				return err
			}
			doc, err := docStore.Post(params, args[0])
			if err != nil {
				return err
			}
			return printDocument(doc)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [model] [json]",
		Short: "Merges the document into the stored document with the same id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseDocument(args[1])
			if err != nil {
				return err
			}
			doc, err := docStore.Put(params, args[0])
			if err != nil {
				return err
			}
			return printDocument(doc)
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [model] [id]",
		Short: "Prints a document, or all documents of the model if no id is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := docstore.Document{}
			if len(args) == 2 {
				params[docStore.IDProperty()] = args[1]
			}
			values, err := docStore.Get(params, args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				util.PrintJSON(values[0])
				return nil
			}
			return printValues(values)
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [model] [id]",
		Short: "Deletes a document and removes it from the index of the model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := docStore.Remove(args[1], args[0]); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
	msetCmd = &cobra.Command{
		Use:   "mset [model] [id] [json] [id] [json]...",
		Short: "Writes many documents at once, existing documents are overwritten",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs := make([]any, 0, len(args)-1)
			for i, arg := range args[1:] {
				if i%2 == 0 {
					pairs = append(pairs, arg)
					continue
				}
				if !json.Valid([]byte(arg)) {
					return fmt.Errorf("value for %s is not valid json", args[i])
				}
				pairs = append(pairs, json.RawMessage(arg))
			}
			if err := docStore.MSet(pairs, args[0]); err != nil {
				return err
			}
			fmt.Printf("mset %d documents successfully\n", len(pairs)/2)
			return nil
		},
	}
	flushCmd = &cobra.Command{
		Use:   "flush [model]",
		Short: "Deletes all documents of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := docStore.FlushModel(args[0]); err != nil {
				return err
			}
			fmt.Println("flushed successfully")
			return nil
		},
	}
	flushAllCmd = &cobra.Command{
		Use:   "flush-all",
		Short: "Deletes all documents of the namespace and resets its index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := docStore.FlushAll(); err != nil {
				return err
			}
			fmt.Println("flushed successfully")
			return nil
		},
	}
	indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Prints the index record of the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := docStore.List()
			if err != nil {
				return err
			}
			data, err := json.Marshal(idx)
			if err != nil {
				return err
			}
			util.PrintJSON(data)
			return nil
		},
	}
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseDocument(arg string) (docstore.Document, error) {
	var doc docstore.Document
	if err := json.Unmarshal([]byte(arg), &doc); err != nil {
		return nil, fmt.Errorf("document must be a json object: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document must be a json object")
	}
	return doc, nil
}

func printDocument(doc docstore.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	util.PrintJSON(data)
	return nil
}

// printValues prints raw documents as one json array
func printValues(values [][]byte) error {
	data, err := encodeValues(values)
	if err != nil {
		return err
	}
	util.PrintJSON(data)
	return nil
}

// encodeValues joins raw values into one json array.
// Missing values become null, values that are not json (mset stores plain strings) become json strings.
func encodeValues(values [][]byte) ([]byte, error) {
	raw := make([]json.RawMessage, len(values))
	for i, v := range values {
		switch {
		case v == nil:
			raw[i] = json.RawMessage("null")
		case json.Valid(v):
			raw[i] = v
		default:
			quoted, err := json.Marshal(string(v))
			if err != nil {
				return nil, err
			}
			raw[i] = quoted
		}
	}
	return json.Marshal(raw)
}
