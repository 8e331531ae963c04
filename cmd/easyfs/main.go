// Command easyfs manipulates easyfs disk images: format one, copy
// files in and out, and manage names and links, through the same vfs
// surface an OS layer would use.
package main

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/mit-pdos/go-journal/util"
	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/easyfs/easyfs/device"
	"github.com/easyfs/easyfs/fs"
	"github.com/easyfs/easyfs/layout"
)

// config holds environment defaults (EASYFS_IMAGE, EASYFS_DEBUG),
// overridable by flags.
type config struct {
	Image string `default:"easyfs.img"`
	Debug uint64 `default:"0"`
}

func main() {
	var cfg config
	if err := envconfig.Process("easyfs", &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "easyfs",
		Usage: "inspect and modify easyfs disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "image",
				Usage: "disk image path",
				Value: cfg.Image,
			},
			&cli.Uint64Flag{
				Name:  "debug",
				Usage: "debug level (higher is more verbose)",
				Value: cfg.Debug,
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "dump per-op stats to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			util.Debug = c.Uint64("debug")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "mkfs",
				Usage: "format a fresh image",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "blocks",
						Usage: "image size in blocks",
						Value: 16384,
					},
					&cli.Uint64Flag{
						Name:  "inode-bitmap-blocks",
						Usage: "blocks reserved for the inode bitmap",
						Value: 1,
					},
				},
				Action: cmdMkfs,
			},
			{Name: "ls", Usage: "list root directory", Action: cmdLs},
			{Name: "put", Usage: "put <host-file> <name>: copy a file in", Action: cmdPut},
			{Name: "cat", Usage: "cat <name>: copy a file to stdout", Action: cmdCat},
			{Name: "ln", Usage: "ln <old> <new>: add a hard link", Action: cmdLn},
			{Name: "rm", Usage: "rm <name>: unlink a name", Action: cmdRm},
			{Name: "stat", Usage: "stat <name>: show inode details", Action: cmdStat},
			{Name: "info", Usage: "show image geometry", Action: cmdInfo},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func cmdMkfs(c *cli.Context) error {
	d, err := device.NewFileDisk(c.String("image"), c.Uint64("blocks"))
	if err != nil {
		return err
	}
	defer d.Close()
	fsys := fs.Format(d, c.Uint64("blocks"), c.Uint64("inode-bitmap-blocks"))
	fsys.SyncAll()
	fmt.Printf("formatted %s: %d blocks\n", c.String("image"), c.Uint64("blocks"))
	return nil
}

// openImage mounts the image named by --image.
func openImage(c *cli.Context) (*fs.FileSystem, device.FileDisk, error) {
	d, err := device.OpenFileDisk(c.String("image"))
	if err != nil {
		return nil, device.FileDisk{}, err
	}
	fsys, err := fs.Open(d)
	if err != nil {
		d.Close()
		return nil, device.FileDisk{}, err
	}
	return fsys, d, nil
}

func finish(c *cli.Context, fsys *fs.FileSystem, d device.FileDisk) {
	fsys.SyncAll()
	if c.Bool("stats") {
		fsys.WriteStats(os.Stderr)
	}
	d.Close()
}

func cmdLs(c *cli.Context) error {
	fsys, d, err := openImage(c)
	if err != nil {
		return err
	}
	defer finish(c, fsys, d)
	for _, name := range fsys.RootInode().Ls() {
		fmt.Println(name)
	}
	return nil
}

func cmdPut(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: put <host-file> <name>")
	}
	data, err := os.ReadFile(c.Args().Get(0))
	if err != nil {
		return err
	}
	fsys, d, err := openImage(c)
	if err != nil {
		return err
	}
	defer finish(c, fsys, d)
	root := fsys.RootInode()
	ip, err := root.Create(c.Args().Get(1))
	if err == fs.ErrExists {
		if ip, err = root.Find(c.Args().Get(1)); err == nil {
			ip.Clear()
		}
	}
	if err != nil {
		return err
	}
	if _, err := ip.WriteAt(0, data); err != nil {
		return err
	}
	return nil
}

func cmdCat(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: cat <name>")
	}
	fsys, d, err := openImage(c)
	if err != nil {
		return err
	}
	defer finish(c, fsys, d)
	ip, err := fsys.RootInode().Find(c.Args().Get(0))
	if err != nil {
		return err
	}
	buf := make([]byte, ip.Size())
	n := ip.ReadAt(0, buf)
	_, err = os.Stdout.Write(buf[:n])
	return err
}

func cmdLn(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: ln <old> <new>")
	}
	fsys, d, err := openImage(c)
	if err != nil {
		return err
	}
	defer finish(c, fsys, d)
	return fsys.RootInode().Link(c.Args().Get(0), c.Args().Get(1))
}

func cmdRm(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: rm <name>")
	}
	fsys, d, err := openImage(c)
	if err != nil {
		return err
	}
	defer finish(c, fsys, d)
	return fsys.RootInode().Unlink(c.Args().Get(0))
}

func cmdStat(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: stat <name>")
	}
	fsys, d, err := openImage(c)
	if err != nil {
		return err
	}
	defer finish(c, fsys, d)
	ip, err := fsys.RootInode().Find(c.Args().Get(0))
	if err != nil {
		return err
	}
	kind := "file"
	if ip.IsDir() {
		kind = "dir"
	}
	tbl := table.New("field", "value")
	tbl.AddRow("name", c.Args().Get(0))
	tbl.AddRow("inode", ip.InodeID())
	tbl.AddRow("type", kind)
	tbl.AddRow("size", ip.Size())
	tbl.AddRow("nlink", ip.Nlink())
	tbl.Print()
	return nil
}

func cmdInfo(c *cli.Context) error {
	d, err := device.OpenFileDisk(c.String("image"))
	if err != nil {
		return err
	}
	defer d.Close()
	sb := layout.DecodeSuperBlock(d.Read(0))
	if !sb.IsValid() {
		return fs.ErrBadMagic
	}
	tbl := table.New("region", "blocks")
	tbl.AddRow("total", sb.TotalBlocks)
	tbl.AddRow("inode bitmap", sb.InodeBitmapBlocks)
	tbl.AddRow("inode area", sb.InodeAreaBlocks)
	tbl.AddRow("data bitmap", sb.DataBitmapBlocks)
	tbl.AddRow("data area", sb.DataAreaBlocks)
	tbl.Print()
	return nil
}
