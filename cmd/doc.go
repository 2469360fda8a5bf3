// Package cmd implements the command-line interface of ddoc. It provides a
// hierarchical command structure for running the server and for working with
// it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starting and configuring the ddoc server
//   - doc: Document operations on a remote store (post, put, get, delete, ...) and a benchmark
//   - kv: Raw key-value operations on a shard (get, set, delete, ...)
//   - util: Shared utilities for flags, configuration and output (internal use)
//
// See ddoc --help for a list of all commands.
package cmd
