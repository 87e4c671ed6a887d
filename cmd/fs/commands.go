package fs

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/kvfs/lib/vfs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "Lists all files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := env.VFS.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
	catCmd = &cobra.Command{
		Use:   "cat [name]",
		Short: "Writes the content of a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := env.VFS.Open(cmd.Context(), args[0], vfs.OpenOptions{ReadOnly: true})
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = copyOut(cmd.Context(), os.Stdout, f)
			return err
		},
	}
	importCmd = &cobra.Command{
		Use:   "import [local path] [name]",
		Short: "Copies a local file into the vfs, replacing an existing file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			f, err := env.VFS.Open(cmd.Context(), args[1], vfs.OpenOptions{Create: true})
			if err != nil {
				return err
			}
			defer f.Close()

			if err := f.Lock(cmd.Context()); err != nil {
				return err
			}
			if err := f.Truncate(cmd.Context(), 0); err != nil {
				return err
			}
			n, err := copyIn(cmd.Context(), f, src)
			if err != nil {
				return err
			}
			if err := f.Sync(cmd.Context()); err != nil {
				return err
			}
			if err := f.Unlock(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("imported %d bytes to %s\n", n, args[1])
			return nil
		},
	}
	exportCmd = &cobra.Command{
		Use:   "export [name] [local path]",
		Short: "Copies a file of the vfs to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := env.VFS.Open(cmd.Context(), args[0], vfs.OpenOptions{ReadOnly: true})
			if err != nil {
				return err
			}
			defer f.Close()

			dst, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer dst.Close()

			n, err := copyOut(cmd.Context(), dst, f)
			if err != nil {
				return err
			}
			fmt.Printf("exported %d bytes to %s\n", n, args[1])
			return dst.Close()
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [name]",
		Short: "Deletes a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.VFS.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
	statCmd = &cobra.Command{
		Use:   "stat [name]",
		Short: "Shows the size and lock state of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := env.VFS.Open(cmd.Context(), args[0], vfs.OpenOptions{ReadOnly: true})
			if err != nil {
				return err
			}
			defer f.Close()

			size, err := f.Size(cmd.Context())
			if err != nil {
				return err
			}
			locked, err := isLocked(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Printf("name=%s, size=%d, locked=%t, vfs=%s\n", args[0], size, locked, env.VFS.Name())
			return nil
		},
	}
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func chunkSize() int {
	kb := viper.GetInt("chunk-size")
	if kb <= 0 {
		kb = 64
	}
	return kb * 1024
}

// copyIn appends everything from r to f, starting at offset 0.
func copyIn(ctx context.Context, f vfs.IFile, r io.Reader) (int64, error) {
	buf := make([]byte, chunkSize())
	var off int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := f.WriteAt(ctx, buf[:n], off); werr != nil {
				return off, werr
			}
			off += int64(n)
		}
		if err == io.EOF {
			return off, nil
		}
		if err != nil {
			return off, err
		}
	}
}

// copyOut writes the content of f to w.
func copyOut(ctx context.Context, w io.Writer, f vfs.IFile) (int64, error) {
	buf := make([]byte, chunkSize())
	var off int64
	for {
		n, err := f.ReadAt(ctx, buf, off)
		if err != nil {
			return off, err
		}
		if n == 0 {
			return off, nil
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return off, err
		}
		off += int64(n)
	}
}

// isLocked probes the file lock by taking and releasing it.
func isLocked(ctx context.Context, f vfs.IFile) (bool, error) {
	err := f.Lock(ctx)
	if vfs.IsCode(err, vfs.CodeBusy) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, f.Unlock(ctx)
}
