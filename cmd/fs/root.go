package fs

import (
	"github.com/ValentinKolb/kvfs/cmd/util"
	"github.com/spf13/cobra"
)

var (
	env *util.Env

	// FileCommands represents the file command group
	FileCommands = &cobra.Command{
		Use:                "fs",
		Short:              "Perform file operations on the vfs",
		PersistentPreRunE:  setupEnv,
		PersistentPostRunE: closeEnv,
	}
)

func init() {
	FileCommands.AddCommand(lsCmd)
	FileCommands.AddCommand(catCmd)
	FileCommands.AddCommand(importCmd)
	FileCommands.AddCommand(exportCmd)
	FileCommands.AddCommand(rmCmd)
	FileCommands.AddCommand(statCmd)

	key := "chunk-size"
	FileCommands.PersistentFlags().Int(key, 64, util.WrapString("Size of a single read or write in KB when copying files"))
}

// setupEnv opens the store and the vfs
func setupEnv(cmd *cobra.Command, _ []string) error {
	var err error
	env, err = util.Setup(cmd)
	return err
}

func closeEnv(_ *cobra.Command, _ []string) error {
	if env == nil {
		return nil
	}
	return env.Close()
}
