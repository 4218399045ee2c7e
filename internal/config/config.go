// Package config loads the format-time size constants (types.Param)
// from a YAML file, environment variables, or built-in defaults, the
// way the wider example corpus loads device configuration via Viper.
package config

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/cirromulus/paffs-go/internal/types"
)

// Load reads paffs-config.yaml from the usual search path, falling back
// to types.DefaultParam()'s values for anything unset.
func Load() (types.Param, error) {
	v := viper.New()
	v.SetConfigName("paffs-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.paffs")
	v.AddConfigPath("/etc/paffs")

	def := types.DefaultParam()
	v.SetDefault("data_bytes_per_page", def.DataBytesPerPage)
	v.SetDefault("oob_bytes_per_page", def.OOBBytesPerPage)
	v.SetDefault("pages_per_block", def.PagesPerBlock)
	v.SetDefault("blocks_total", def.BlocksTotal)
	v.SetDefault("blocks_per_area", def.BlocksPerArea)
	v.SetDefault("jump_pad_no", def.JumpPadNo)
	v.SetDefault("tree_node_cache_size", def.TreeNodeCacheSize)
	v.SetDefault("area_summary_cache_size", def.AreaSummaryCacheSize)
	v.SetDefault("max_pages_per_write", def.MaxPagesPerWrite)
	v.SetDefault("max_number_of_inodes", def.MaxNumberOfInodes)
	v.SetDefault("max_number_of_files", def.MaxNumberOfFiles)

	v.SetEnvPrefix("PAFFS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return types.Param{}, fmt.Errorf("config: reading paffs-config.yaml: %w", err)
		}
	}

	var param types.Param
	if err := v.Unmarshal(&param); err != nil {
		return types.Param{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if param.FilesystemUUID == uuid.Nil {
		param.FilesystemUUID = uuid.New()
	}
	if err := Validate(param); err != nil {
		return types.Param{}, err
	}
	return param, nil
}

// Validate rejects a Param that would violate a hard invariant elsewhere
// in the core (a zero page size, a branch order too small to ever hold a
// split node, and so on).
func Validate(p types.Param) error {
	if p.DataBytesPerPage == 0 {
		return fmt.Errorf("config: data_bytes_per_page must be > 0")
	}
	if p.PagesPerBlock == 0 {
		return fmt.Errorf("config: pages_per_block must be > 0")
	}
	if p.BlocksPerArea == 0 {
		return fmt.Errorf("config: blocks_per_area must be > 0")
	}
	if p.BlocksTotal < p.BlocksPerArea*4 {
		return fmt.Errorf("config: blocks_total must hold at least 4 areas (superblock, journal, index, data)")
	}
	if p.DataBytesPerPage <= types.AddrSize+1 || p.BranchOrder() < 3 {
		return fmt.Errorf("config: data_bytes_per_page too small for a usable branch order")
	}
	if p.LeafOrder() < 2 {
		return fmt.Errorf("config: data_bytes_per_page too small for a usable leaf order")
	}
	return nil
}
