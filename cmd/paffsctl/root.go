// Command paffsctl is a thin CLI over pkg/paffs: format, mount, and fsck
// a simulated NAND image, the way the wider example corpus wraps its
// container operations in a cobra root command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cirromulus/paffs-go/internal/device"
)

var (
	imagePath    string
	mramBytes    uint64
	useFlashJr   bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "paffsctl",
	Short: "Format, mount, and check PAFFS images",
	Long: `paffsctl drives a PAFFS image backed by a file-simulated NAND chip.

Commands:
  format   create a fresh image and its root directory
  mount    scan an existing image and print its root listing
  fsck     mount an image and unmount it again, reporting any error`,
	Version: "0.1.0-dev",
}

// Execute runs the root command, printing any error to stderr and
// exiting non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "paffsctl: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&imagePath, "image", "i", "paffs.img", "path to the backing image file")
	rootCmd.PersistentFlags().Uint64Var(&mramBytes, "mram-bytes", 4096, "size of the simulated MRAM byte space")
	rootCmd.PersistentFlags().BoolVar(&useFlashJr, "flash-journal", false, "use the flash-backed journal instead of MRAM")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or yaml")
}

// render writes v to stdout as YAML when --output=yaml, otherwise it
// invokes renderText and leaves plain formatting to the caller.
func render(v any, renderText func()) error {
	if outputFormat != "yaml" {
		renderText()
		return nil
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func main() {
	Execute()
}

// journalBackend maps the --flash-journal flag to the backend Device
// expects.
func journalBackend() device.JournalBackend {
	if useFlashJr {
		return device.JournalBackendFlash
	}
	return device.JournalBackendMRAM
}
