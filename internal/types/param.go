package types

import "github.com/google/uuid"

// Param holds the build-time size constants that must be fixed at format
// time (spec.md §6, "Size constants"). mapstructure tags let
// internal/config load these from a YAML/env source via viper the same
// way the wider example corpus loads device configuration.
type Param struct {
	DataBytesPerPage   uint32    `mapstructure:"data_bytes_per_page"`
	OOBBytesPerPage    uint32    `mapstructure:"oob_bytes_per_page"`
	PagesPerBlock      uint32    `mapstructure:"pages_per_block"`
	BlocksTotal        uint32    `mapstructure:"blocks_total"`
	BlocksPerArea      uint32    `mapstructure:"blocks_per_area"`
	JumpPadNo          uint32    `mapstructure:"jump_pad_no"`
	TreeNodeCacheSize  uint32    `mapstructure:"tree_node_cache_size"`
	AreaSummaryCacheSize uint32  `mapstructure:"area_summary_cache_size"`
	MaxPagesPerWrite   uint32    `mapstructure:"max_pages_per_write"`
	MaxNumberOfInodes  uint32    `mapstructure:"max_number_of_inodes"`
	MaxNumberOfFiles   uint32    `mapstructure:"max_number_of_files"`
	FilesystemUUID     uuid.UUID `mapstructure:"filesystem_uuid"`
}

// DefaultParam returns a reference configuration (512-byte pages) for
// tests and callers that don't care about sizing.
func DefaultParam() Param {
	return Param{
		DataBytesPerPage:     512,
		OOBBytesPerPage:      16,
		PagesPerBlock:        64,
		BlocksTotal:          256,
		BlocksPerArea:        4,
		JumpPadNo:            2,
		TreeNodeCacheSize:    32,
		AreaSummaryCacheSize: 8,
		MaxPagesPerWrite:     16,
		MaxNumberOfInodes:    1024,
		MaxNumberOfFiles:     1024,
		FilesystemUUID:       uuid.New(),
	}
}

// Derived carries the constants computed from Param at format/mount time
// (spec.md §6, "Derived (auto)").
type Derived struct {
	TotalBytesPerPage  uint32
	AreasNo            uint32
	TotalPagesPerArea  uint32
	OOBPagesPerArea    uint32
	DataPagesPerArea   uint32
	AddrsPerPage       uint32
}

// Compute derives the auto constants from p.
func (p Param) Compute() Derived {
	var d Derived
	d.TotalBytesPerPage = p.DataBytesPerPage + p.OOBBytesPerPage
	d.AreasNo = p.BlocksTotal / p.BlocksPerArea
	d.TotalPagesPerArea = p.BlocksPerArea * p.PagesPerBlock
	d.OOBPagesPerArea = 1 + (d.TotalPagesPerArea/8)/p.DataBytesPerPage
	if d.OOBPagesPerArea == 0 {
		d.OOBPagesPerArea = 1
	}
	d.DataPagesPerArea = d.TotalPagesPerArea - d.OOBPagesPerArea
	d.AddrsPerPage = p.DataBytesPerPage / AddrSize
	return d
}

// BranchOrder computes branch_order per spec.md §4.5.
func (p Param) BranchOrder() uint32 {
	return (p.DataBytesPerPage - AddrSize - 1) / (AddrSize + 4)
}

// LeafOrder computes leaf_order per spec.md §4.5.
func (p Param) LeafOrder() uint32 {
	return (p.DataBytesPerPage - AddrSize - 1) / (InodeOnFlashSize + 4)
}
