package demo

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/ValentinKolb/kvfs/cmd/util"
	"github.com/ValentinKolb/kvfs/lib/pager"
	"github.com/ValentinKolb/kvfs/lib/vfs"
	"github.com/spf13/cobra"
)

var (
	// DemoCmd walks through the vfs and the pager on the configured store
	DemoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Runs a short walk through the vfs and the pager",
		Long: `Runs a short walk through the vfs and the pager:

  1. open users.db in the default vfs, write 100 zero bytes and [1,2,3] at offset 10
  2. read the 100 bytes back and print them
  3. write three pages of demo.db through the pager and read page 2 back

users.db and demo.db are deleted at the end.`,
		Args: cobra.NoArgs,
		RunE: run,
	}
)

func run(cmd *cobra.Command, _ []string) error {
	env, err := util.Setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()
	ctx := cmd.Context()

	fmt.Println("Configuration:")
	fmt.Println(env.Config.String())

	// --- vfs -------------------------------------------------------------

	v, ok := env.Registry.Default()
	if !ok {
		return fmt.Errorf("no default vfs registered")
	}
	f, err := v.Open(ctx, "users.db", vfs.OpenOptions{Create: true})
	if err != nil {
		return err
	}
	defer v.Delete(ctx, "users.db")
	defer f.Close()

	if _, err := f.WriteAt(ctx, make([]byte, 100), 0); err != nil {
		return err
	}
	if _, err := f.WriteAt(ctx, []byte{1, 2, 3}, 10); err != nil {
		return err
	}
	buf := make([]byte, 100)
	n, err := f.ReadAt(ctx, buf, 0)
	if err != nil {
		return err
	}
	fmt.Printf("users.db: read %d bytes\n%s", n, hex.Dump(buf[:n]))

	// a read past the end returns nothing
	n, err = f.ReadAt(ctx, buf, 1000)
	if err != nil {
		return err
	}
	fmt.Printf("users.db: read %d bytes at offset 1000\n\n", n)

	// --- pager -----------------------------------------------------------

	c, err := pager.Open(ctx, env.Registry, "demo.db", pager.OpenReadWrite|pager.OpenCreate, "",
		pager.WithPageSize(env.Config.PageSize))
	if err != nil {
		return err
	}
	defer v.Delete(ctx, "demo.db")
	defer c.Close()

	if err := c.Begin(ctx); err != nil {
		return err
	}
	for pgno := uint32(1); pgno <= 3; pgno++ {
		page := bytes.Repeat([]byte{byte('a' + pgno - 1)}, c.PageSize())
		if err := c.WritePage(ctx, pgno, page); err != nil {
			_ = c.Rollback(ctx)
			return err
		}
	}
	if err := c.Commit(ctx); err != nil {
		return err
	}

	count, err := c.PageCount(ctx)
	if err != nil {
		return err
	}
	page, err := c.ReadPage(ctx, 2)
	if err != nil {
		return err
	}
	fmt.Printf("demo.db: %d pages of %d bytes, page 2 starts with %q\n", count, c.PageSize(), page[:8])
	return nil
}
