package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/fat"
	"github.com/aligator/discfs/ntfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagVerbose bool
	flagOffset  int64
	flagLength  int64
)

func newApp() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "discfs",
		Short:         "inspect FAT and NTFS filesystem images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if flagVerbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().Int64Var(&flagOffset, "offset", 0, "byte offset of the filesystem inside the image")
	rootCmd.PersistentFlags().Int64Var(&flagLength, "length", 0, "byte length of the filesystem inside the image (0 = to end)")

	rootCmd.AddCommand(
		newInfoCommand(),
		newLsCommand(),
		newTreeCommand(),
		newCatCommand(),
		newStatCommand(),
		newMkfsCommand(),
	)
	return rootCmd
}

// mount opens the image at path and auto-detects the filesystem from the
// boot sector: an "NTFS" OEM id selects the NTFS engine, everything else is
// tried as FAT.
func mount(path string, writable bool) (discfs.FileSystem, func(), error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, nil, err
	}
	closeFile := func() { f.Close() }

	var dev discfs.Device = discfs.NewOSFileDevice(f)
	if !writable {
		dev = discfs.NewReadOnlyFileDevice(f)
	}
	if flagOffset != 0 || flagLength != 0 {
		length := flagLength
		if length == 0 {
			length = dev.Size() - flagOffset
		}
		dev = discfs.NewSectionDevice(dev, flagOffset, length)
	}

	sector := make([]byte, discfs.SectorSize)
	if _, err := dev.ReadAt(sector, 0); err != nil {
		closeFile()
		return nil, nil, err
	}

	var fsys discfs.FileSystem
	if string(sector[3:7]) == "NTFS" {
		fsys, err = ntfs.New(dev, discfs.Options{})
	} else {
		fsys, err = fat.New(dev, discfs.Options{ReadOnly: !writable})
	}
	if err != nil {
		closeFile()
		return nil, nil, err
	}
	return fsys, func() {
		fsys.Close()
		closeFile()
	}, nil
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info IMAGE",
		Short: "show volume facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, done, err := mount(args[0], false)
			if err != nil {
				return err
			}
			defer done()

			fmt.Fprintf(cmd.OutOrStdout(), "Type:  %s\n", fsys.FSType())
			fmt.Fprintf(cmd.OutOrStdout(), "Label: %s\n", fsys.Label())
			fmt.Fprintf(cmd.OutOrStdout(), "Write: %v\n", fsys.CanWrite())
			return nil
		},
	}
}

func newLsCommand() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "ls IMAGE [PATH]",
		Short: "list a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, done, err := mount(args[0], false)
			if err != nil {
				return err
			}
			defer done()

			path := ""
			if len(args) > 1 {
				path = args[1]
			}

			dir, err := fsys.Open(path)
			if err != nil {
				return err
			}
			defer dir.Close()

			infos, err := dir.Readdir(-1)
			if err != nil {
				return err
			}
			for _, info := range infos {
				if pattern != "" {
					ok, err := discfs.MatchesWildcard(pattern, info.Name())
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}
				kind := " "
				if info.IsDir() {
					kind = "d"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %10d  %s  %s\n", kind, info.Size(), info.ModTime().Format("2006-01-02 15:04:05"), info.Name())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "DOS wildcard filter, e.g. '*.txt'")
	return cmd
}

func newTreeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree IMAGE [PATH]",
		Short: "list all entries below a path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, done, err := mount(args[0], false)
			if err != nil {
				return err
			}
			defer done()

			path := ""
			if len(args) > 1 {
				path = args[1]
			}
			entries, err := fsys.GetFileSystemEntries(path, "", true)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), "\\"+entry)
			}
			return nil
		},
	}
}

func newCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat IMAGE PATH",
		Short: "print a file (NTFS also supports file:stream)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, done, err := mount(args[0], false)
			if err != nil {
				return err
			}
			defer done()

			f, err := fsys.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			_, err = io.Copy(cmd.OutOrStdout(), f)
			return err
		},
	}
}

func newStatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stat IMAGE PATH",
		Short: "show metadata of a single entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, done, err := mount(args[0], false)
			if err != nil {
				return err
			}
			defer done()

			info, err := fsys.Stat(args[1])
			if err != nil {
				return err
			}
			attrs, err := fsys.GetAttributes(args[1])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Name:  %s\n", info.Name())
			fmt.Fprintf(cmd.OutOrStdout(), "Size:  %d\n", info.Size())
			fmt.Fprintf(cmd.OutOrStdout(), "Dir:   %v\n", info.IsDir())
			fmt.Fprintf(cmd.OutOrStdout(), "Attrs: %s\n", attrs)
			fmt.Fprintf(cmd.OutOrStdout(), "MTime: %s\n", info.ModTime())
			return nil
		},
	}
}

func newMkfsCommand() *cobra.Command {
	var (
		size   int64
		label  string
		fsType string
	)
	cmd := &cobra.Command{
		Use:   "mkfs IMAGE",
		Short: "format an image file as FAT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.OpenFile(args[0], os.O_RDWR|os.O_CREATE, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			dev := discfs.NewOSFileDevice(f)

			switch strings.ToLower(fsType) {
			case "floppy":
				return fat.FormatFloppy(dev, fat.Floppy144, label)
			case "fat", "auto":
				if size == 0 {
					size = dev.Size()
				}
				return fat.Format(dev, fat.FormatOptions{
					Label:       label,
					SectorCount: uint32(size / discfs.SectorSize),
				})
			case "fat32":
				if size == 0 {
					size = dev.Size()
				}
				return fat.Format(dev, fat.FormatOptions{
					Label:       label,
					SectorCount: uint32(size / discfs.SectorSize),
					ForceFAT32:  true,
				})
			default:
				return fmt.Errorf("unknown filesystem type %q", fsType)
			}
		},
	}
	cmd.Flags().Int64Var(&size, "size", 0, "filesystem size in bytes (defaults to the file size)")
	cmd.Flags().StringVar(&label, "label", "", "volume label")
	cmd.Flags().StringVar(&fsType, "type", "auto", "fat, fat32 or floppy")
	return cmd
}
