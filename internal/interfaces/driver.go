// Package interfaces declares the contracts each PAFFS component exposes
// to the rest of the core, the way the surrounding example corpus
// separates a narrow interfaces package from its concrete managers.
package interfaces

// ReadResult classifies the outcome of a page read.
type ReadResult uint8

const (
	ReadOK ReadResult = iota
	ReadBiterrorCorrected
	ReadBiterrorNotCorrected
	ReadFail
)

// Driver is the hardware facade (component A): raw page/block/MRAM
// operations. The core never speaks to hardware except through this
// interface; ECC bit-twiddling and bad-block marker conventions are the
// concrete driver's problem, not the core's.
type Driver interface {
	// WritePage writes buf (len <= TotalBytesPerPage) plus ECC to the
	// given absolute page. Writing an unerased page is a fatal bug in
	// the caller, not a condition this returns gracefully.
	WritePage(pageAbs uint64, buf []byte) error

	// ReadPage reads the given absolute page into buf and reports the
	// ECC outcome.
	ReadPage(pageAbs uint64, buf []byte) (ReadResult, error)

	// EraseBlock erases the given absolute block.
	EraseBlock(blockAbs uint64) error

	// MarkBad marks blockAbs as permanently unusable.
	MarkBad(blockAbs uint64) error

	// CheckBad reports whether blockAbs was previously marked bad.
	CheckBad(blockAbs uint64) (bool, error)

	// WriteMRAM writes buf at the given byte offset in the MRAM's
	// byte-addressable space. Only implementations backing an
	// MRAM-resident journal need support this.
	WriteMRAM(byteOffset uint64, buf []byte) error

	// ReadMRAM reads len(buf) bytes from the given byte offset.
	ReadMRAM(byteOffset uint64, buf []byte) error
}
