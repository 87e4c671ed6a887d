package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/kvfs/cmd/bench"
	"github.com/ValentinKolb/kvfs/cmd/demo"
	"github.com/ValentinKolb/kvfs/cmd/fs"
	"github.com/ValentinKolb/kvfs/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvfs",
		Short: "random access files on a key-value store",
		Long: fmt.Sprintf(`kvfs (v%s)

A virtual file system that stores every file as a single value of a
key-value store (in memory, bbolt or replicated with RAFT) and gives
database engines page-wise random access to it.

Every flag can also be set as an environment variable KVFS_<FLAG>
(e.g. KVFS_STORE=dstore), .env and .env.local are loaded at startup.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvfs",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvfs v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(demo.DemoCmd)
	RootCmd.AddCommand(fs.FileCommands)
	RootCmd.AddCommand(bench.BenchCmd)

	// Add Flags
	util.SetupStoreFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
