package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/types"
	"github.com/cirromulus/paffs-go/pkg/paffs"
)

// fsckResult is the structured shape printed for --output=yaml.
type fsckResult struct {
	Image     string `yaml:"image"`
	OK        bool   `yaml:"ok"`
	RootInode uint64 `yaml:"root_inode"`
}

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Scan an image's superblock chain and journal without further use",
	RunE: func(cmd *cobra.Command, args []string) error {
		param := types.DefaultParam()
		raw, err := simdriver.Open(imagePath, param, int(mramBytes))
		if err != nil {
			return fmt.Errorf("opening %s: %w", imagePath, err)
		}
		defer raw.Close()

		fs, err := paffs.Mount(raw, param, journalBackend(), 0, mramBytes, nil)
		if err != nil {
			return fmt.Errorf("image is inconsistent: %w", err)
		}
		root, err := fs.GetObjInfo("/")
		if err != nil {
			fs.Unmount()
			return fmt.Errorf("root directory unreadable: %w", err)
		}
		if err := fs.Unmount(); err != nil {
			return fmt.Errorf("final commit failed: %w", err)
		}

		result := fsckResult{Image: imagePath, OK: true, RootInode: uint64(root.No)}
		return render(result, func() {
			fmt.Printf("%s: superblock chain and journal replay OK, root inode %d\n", imagePath, root.No)
		})
	},
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}
