package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/types"
	"github.com/cirromulus/paffs-go/pkg/paffs"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Create a fresh image and its root directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		param := types.DefaultParam()
		raw, err := simdriver.New(imagePath, param, int(mramBytes))
		if err != nil {
			return fmt.Errorf("opening %s: %w", imagePath, err)
		}
		defer raw.Close()

		fs, err := paffs.Format(raw, param, journalBackend(), 0, mramBytes, nil)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		if err := fs.Unmount(); err != nil {
			return fmt.Errorf("unmount after format: %w", err)
		}
		fmt.Printf("formatted %s\n", imagePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
}
