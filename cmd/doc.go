// Package cmd implements the command-line interface of txlock. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the txlock server
//   - tx: Begins and ends transactions
//   - lock: Acquires and releases locks, inspects the lock table and runs
//     a contention benchmark
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Transactions live on the server, so a transaction begun by one invocation
// can be used by later ones:
//
//	$ txlock tx begin --tx-timeout 60
//	txId=1
//	$ txlock lock acquire 1 account/42 --mode exclusive
//	acquired=true
//	$ txlock tx end 1
//
// See txlock -help for a list of all commands.
package cmd
