package tx

import (
	"fmt"

	"github.com/ValentinKolb/txlock/cmd/util"
	"github.com/ValentinKolb/txlock/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcContainer *client.RPCContainer
	txTimeout    uint64

	// TxCommands represents the transaction command group
	TxCommands = &cobra.Command{
		Use:               "tx",
		Short:             "Begin and end transactions",
		PersistentPreRunE: setupTxClient,
	}

	beginCmd = &cobra.Command{
		Use:   "begin",
		Short: "Begin a new transaction and print its id",
		Long:  "Begin a new transaction. With a timeout the transaction is ended by the server once it was idle for the given number of seconds, releasing all of its locks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txID, err := rpcContainer.Begin(txTimeout)
			if err != nil {
				return fmt.Errorf("failed to begin transaction: %w", err)
			}
			fmt.Printf("txId=%d\n", txID)
			return nil
		},
	}

	endCmd = &cobra.Command{
		Use:   "end [txID]",
		Short: "End a transaction, releasing all of its locks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txID, err := util.ParseTxID(args[0])
			if err != nil {
				return err
			}
			if err := rpcContainer.End(txID); err != nil {
				return fmt.Errorf("failed to end transaction: %w", err)
			}
			fmt.Println("ended successfully")
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the tx command
	util.SetupRPCClientFlags(TxCommands)

	TxCommands.AddCommand(beginCmd)
	TxCommands.AddCommand(endCmd)

	// the timeout flag belongs to the client
	beginCmd.Flags().Uint64Var(&txTimeout, "tx-timeout", 0, util.WrapString("Idle timeout of the transaction in seconds (0 for no timeout)"))
}

// setupTxClient initializes the container client
func setupTxClient(cmd *cobra.Command, _ []string) (err error) {
	rpcContainer, err = util.NewContainerClient(cmd)
	return err
}
