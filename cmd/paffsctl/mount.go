package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/types"
	"github.com/cirromulus/paffs-go/pkg/paffs"
)

// mountEntry and mountResult are the structured shapes printed for
// --output=yaml.
type mountEntry struct {
	Name  string `yaml:"name"`
	Inode uint64 `yaml:"inode"`
}

type mountResult struct {
	Image   string       `yaml:"image"`
	Entries []mountEntry `yaml:"entries"`
}

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Scan an existing image and print its root listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		param := types.DefaultParam()
		raw, err := simdriver.Open(imagePath, param, int(mramBytes))
		if err != nil {
			return fmt.Errorf("opening %s: %w", imagePath, err)
		}
		defer raw.Close()

		fs, err := paffs.Mount(raw, param, journalBackend(), 0, mramBytes, nil)
		if err != nil {
			return fmt.Errorf("mount: %w", err)
		}
		defer fs.Unmount()

		dir, err := fs.OpenDir("/")
		if err != nil {
			return fmt.Errorf("reading root directory: %w", err)
		}
		var entries []mountEntry
		for {
			name, no, ok := dir.ReadDir()
			if !ok {
				break
			}
			entries = append(entries, mountEntry{Name: name, Inode: uint64(no)})
		}
		if err := dir.CloseDir(); err != nil {
			return err
		}

		return render(mountResult{Image: imagePath, Entries: entries}, func() {
			for _, e := range entries {
				fmt.Printf("%-20s ino=%d\n", e.Name, e.Inode)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(mountCmd)
}
