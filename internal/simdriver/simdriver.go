// Package simdriver provides the only test double for the driver facade:
// a file-backed NAND + MRAM simulator used by every other package's
// tests instead of a hand-rolled fake per package.
package simdriver

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// Driver simulates a raw NAND chip plus an MRAM byte space on top of a
// single backing file. It enforces "write before erase is a bug" and
// "read an erased page is all-0xFF" the way real NAND behaves, and can
// be told to fail the Nth write to model a torn write for power-loss
// tests.
type Driver struct {
	param   types.Param
	derived types.Derived

	f    *os.File
	path string

	pageWritten []bool
	badBlocks   map[uint64]bool
	mram        []byte

	writeCount   uint64
	failWriteAt  uint64 // 0 disables; else the 1-indexed write call that fails
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithFailWriteAt arranges for the nth WritePage call (1-indexed, across
// both page and MRAM writes) to return an error, modelling a torn write
// for power-loss tests.
func WithFailWriteAt(n uint64) Option {
	return func(d *Driver) { d.failWriteAt = n }
}

// New creates a Driver backed by a file at path (truncated/created fresh)
// sized for param, with an MRAM byte space of mramSize bytes.
func New(path string, param types.Param, mramSize int, opts ...Option) (*Driver, error) {
	derived := param.Compute()
	totalPages := uint64(param.BlocksTotal) * uint64(param.PagesPerBlock)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("simdriver: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("simdriver: flock %s: %w", path, err)
	}
	size := int64(totalPages) * int64(derived.TotalBytesPerPage)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("simdriver: truncate: %w", err)
	}

	d := &Driver{
		param:       param,
		derived:     derived,
		f:           f,
		path:        path,
		pageWritten: make([]bool, totalPages),
		badBlocks:   make(map[uint64]bool),
		mram:        make([]byte, mramSize),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Open reopens an existing image previously created by New, without
// truncating it, for a CLI-style mount against a prior format. Since
// pageWritten is pure in-memory bookkeeping, it is reconstructed from
// the file contents: a page whose bytes aren't all 0xFF is taken to
// have been written, matching how ReadPage already treats an untouched
// page as erased.
func Open(path string, param types.Param, mramSize int, opts ...Option) (*Driver, error) {
	derived := param.Compute()
	totalPages := uint64(param.BlocksTotal) * uint64(param.PagesPerBlock)

	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("simdriver: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("simdriver: flock %s: %w", path, err)
	}

	d := &Driver{
		param:       param,
		derived:     derived,
		f:           f,
		path:        path,
		pageWritten: make([]bool, totalPages),
		badBlocks:   make(map[uint64]bool),
		mram:        make([]byte, mramSize),
	}
	page := make([]byte, derived.TotalBytesPerPage)
	for p := uint64(0); p < totalPages; p++ {
		if _, err := f.ReadAt(page, d.pageOffset(p)); err != nil {
			f.Close()
			return nil, fmt.Errorf("simdriver: scanning page %d: %w", p, err)
		}
		d.pageWritten[p] = !allFF(page)
	}
	mramOff := int64(totalPages) * int64(derived.TotalBytesPerPage)
	if _, err := f.ReadAt(d.mram, mramOff); err != nil {
		f.Close()
		return nil, fmt.Errorf("simdriver: reading mram region: %w", err)
	}

	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func allFF(buf []byte) bool {
	for _, b := range buf {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// Close releases the backing file and its lock.
func (d *Driver) Close() error {
	if d.f == nil {
		return nil
	}
	unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *Driver) pageOffset(pageAbs uint64) int64 {
	return int64(pageAbs) * int64(d.derived.TotalBytesPerPage)
}

func (d *Driver) countWrite() error {
	d.writeCount++
	if d.failWriteAt != 0 && d.writeCount == d.failWriteAt {
		return fmt.Errorf("simdriver: injected write failure at call %d", d.writeCount)
	}
	return nil
}

// WritePage implements interfaces.Driver.
func (d *Driver) WritePage(pageAbs uint64, buf []byte) error {
	if pageAbs >= uint64(len(d.pageWritten)) {
		return fmt.Errorf("simdriver: page %d out of range", pageAbs)
	}
	if d.pageWritten[pageAbs] {
		return fmt.Errorf("simdriver: bug: page %d written twice before erase", pageAbs)
	}
	if err := d.countWrite(); err != nil {
		return err
	}
	if len(buf) > int(d.derived.TotalBytesPerPage) {
		return fmt.Errorf("simdriver: buf too long for page")
	}
	if _, err := d.f.WriteAt(buf, d.pageOffset(pageAbs)); err != nil {
		return err
	}
	if err := unix.Fdatasync(int(d.f.Fd())); err != nil {
		return err
	}
	d.pageWritten[pageAbs] = true
	return nil
}

// ReadPage implements interfaces.Driver. Erased-and-never-written pages
// read back as all-0xFF, matching real NAND.
func (d *Driver) ReadPage(pageAbs uint64, buf []byte) (interfaces.ReadResult, error) {
	if pageAbs >= uint64(len(d.pageWritten)) {
		return interfaces.ReadFail, fmt.Errorf("simdriver: page %d out of range", pageAbs)
	}
	if !d.pageWritten[pageAbs] {
		for i := range buf {
			buf[i] = 0xFF
		}
		return interfaces.ReadOK, nil
	}
	n, err := d.f.ReadAt(buf, d.pageOffset(pageAbs))
	if err != nil && n != len(buf) {
		return interfaces.ReadFail, err
	}
	return interfaces.ReadOK, nil
}

// EraseBlock implements interfaces.Driver.
func (d *Driver) EraseBlock(blockAbs uint64) error {
	if d.badBlocks[blockAbs] {
		return fmt.Errorf("simdriver: erase of bad block %d", blockAbs)
	}
	first := blockAbs * uint64(d.param.PagesPerBlock)
	last := first + uint64(d.param.PagesPerBlock)
	blank := make([]byte, d.derived.TotalBytesPerPage)
	for i := range blank {
		blank[i] = 0xFF
	}
	for p := first; p < last && p < uint64(len(d.pageWritten)); p++ {
		if _, err := d.f.WriteAt(blank, d.pageOffset(p)); err != nil {
			return err
		}
		d.pageWritten[p] = false
	}
	return unix.Fdatasync(int(d.f.Fd()))
}

// MarkBad implements interfaces.Driver.
func (d *Driver) MarkBad(blockAbs uint64) error {
	d.badBlocks[blockAbs] = true
	return nil
}

// CheckBad implements interfaces.Driver.
func (d *Driver) CheckBad(blockAbs uint64) (bool, error) {
	return d.badBlocks[blockAbs], nil
}

// WriteMRAM implements interfaces.Driver.
func (d *Driver) WriteMRAM(byteOffset uint64, buf []byte) error {
	if byteOffset+uint64(len(buf)) > uint64(len(d.mram)) {
		return fmt.Errorf("simdriver: mram write out of range")
	}
	if err := d.countWrite(); err != nil {
		return err
	}
	copy(d.mram[byteOffset:], buf)
	return nil
}

// ReadMRAM implements interfaces.Driver.
func (d *Driver) ReadMRAM(byteOffset uint64, buf []byte) error {
	if byteOffset+uint64(len(buf)) > uint64(len(d.mram)) {
		return fmt.Errorf("simdriver: mram read out of range")
	}
	copy(buf, d.mram[byteOffset:])
	return nil
}
