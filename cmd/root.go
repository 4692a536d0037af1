package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/txlock/cmd/lock"
	"github.com/ValentinKolb/txlock/cmd/serve"
	"github.com/ValentinKolb/txlock/cmd/tx"
	"github.com/ValentinKolb/txlock/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "txlock",
		Short: "transaction lock service",
		Long: fmt.Sprintf(`txlock (v%s)

A lock manager for transactions written in Go. Transactions acquire shared
or exclusive locks on named resources, conflicting requests wait in FIFO
order and deadlocks are detected before a request starts to wait.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of txlock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("txlock v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(tx.TxCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
