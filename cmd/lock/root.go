package lock

import (
	"fmt"

	"github.com/ValentinKolb/txlock/cmd/util"
	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/ValentinKolb/txlock/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcContainer *client.RPCContainer
	lockMode     string

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform lock operations within a transaction",
		PersistentPreRunE: setupLockClient,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [txID] [name]",
		Short: "Acquire a lock for a transaction",
		Long:  "Acquire a lock for a transaction. The command blocks until the lock is granted or the request fails, e.g. because it would cause a deadlock. acquired=false means the transaction already held the lock.",
		Args:  cobra.ExactArgs(2),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [txID] [name]",
		Short: "Release a lock held by a transaction",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}

	sizeCmd = &cobra.Command{
		Use:   "size",
		Short: "Print the number of locks in the lock table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := rpcContainer.Size()
			if err != nil {
				return err
			}
			fmt.Printf("size=%d\n", size)
			return nil
		},
	}

	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print the state of all transactions and locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dump, err := rpcContainer.Dump()
			if err != nil {
				return err
			}
			fmt.Print(dump)
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)
	LockCommands.AddCommand(sizeCmd)
	LockCommands.AddCommand(dumpCmd)
	LockCommands.AddCommand(perfTestCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)

	// Add flags specific to acquire
	acquireCmd.Flags().StringVar(&lockMode, "mode", "exclusive", util.WrapString("Lock mode (shared or exclusive)"))
}

// setupLockClient initializes the container client
func setupLockClient(cmd *cobra.Command, _ []string) (err error) {
	rpcContainer, err = util.NewContainerClient(cmd)
	return err
}

// runAcquire handles the acquire lock command
func runAcquire(_ *cobra.Command, args []string) error {
	txID, err := util.ParseTxID(args[0])
	if err != nil {
		return err
	}

	mode, err := lockmgr.ParseMode(lockMode)
	if err != nil {
		return err
	}

	acquired, err := rpcContainer.Lock(txID, args[1], mode)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	fmt.Printf("acquired=%v\n", acquired)
	return nil
}

// runRelease handles the release lock command
func runRelease(_ *cobra.Command, args []string) error {
	txID, err := util.ParseTxID(args[0])
	if err != nil {
		return err
	}

	if err := rpcContainer.Unlock(txID, args[1]); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	fmt.Println("released=true")
	return nil
}
