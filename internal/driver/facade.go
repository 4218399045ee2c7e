// Package driver implements the Driver facade (component A): it wraps a
// raw interfaces.Driver with the ECC-aware retry and failure-escalation
// policy spec.md §4.1 assigns to "the caller" of a raw read/write.
package driver

import (
	"log/slog"

	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// Facade wraps a raw interfaces.Driver with retry-on-biterror semantics.
type Facade struct {
	raw interfaces.Driver
	log *slog.Logger
}

// New wraps raw with the given logger (slog.Default() if nil).
func New(raw interfaces.Driver, log *slog.Logger) *Facade {
	if log == nil {
		log = slog.Default()
	}
	return &Facade{raw: raw, log: log}
}

// ReadPage reads pageAbs into buf. A corrected bit error is logged as a
// warning and returned as KindBiterrorCorrected without a retry; an
// uncorrected bit error is retried once, and a second failure is returned
// as KindBiterrorNotCorrected. A driver failure is returned as
// KindBadFlash.
func (f *Facade) ReadPage(pageAbs uint64, buf []byte) error {
	res, err := f.raw.ReadPage(pageAbs, buf)
	if err != nil {
		return types.NewError("readPage", types.KindBadFlash, err)
	}
	switch res {
	case interfaces.ReadOK:
		return nil
	case interfaces.ReadBiterrorCorrected:
		f.log.Warn("bit error corrected", "page", pageAbs)
		return types.NewError("readPage", types.KindBiterrorCorrected, nil)
	case interfaces.ReadBiterrorNotCorrected:
		// Retry once: a second read can succeed if the first failure
		// was transient noise rather than a worn-out cell.
		res2, err2 := f.raw.ReadPage(pageAbs, buf)
		if err2 == nil && res2 == interfaces.ReadOK {
			f.log.Warn("bit error recovered on retry", "page", pageAbs)
			return nil
		}
		f.log.Error("uncorrectable bit error", "page", pageAbs)
		return types.NewError("readPage", types.KindBiterrorNotCorrected, nil)
	default:
		return types.NewError("readPage", types.KindBadFlash, nil)
	}
}

// WritePage writes buf to pageAbs, returning KindBadFlash on failure.
// Callers pass that error up as it is: none of them closes the active
// area or marks its remaining pages dirty after a failed write.
func (f *Facade) WritePage(pageAbs uint64, buf []byte) error {
	if err := f.raw.WritePage(pageAbs, buf); err != nil {
		return types.NewError("writePage", types.KindBadFlash, err)
	}
	return nil
}

// EraseBlock erases blockAbs, returning KindBadFlash on failure. The
// garbage collector retires an area when one of its blocks fails to
// erase.
func (f *Facade) EraseBlock(blockAbs uint64) error {
	if err := f.raw.EraseBlock(blockAbs); err != nil {
		return types.NewError("eraseBlock", types.KindBadFlash, err)
	}
	return nil
}

// MarkBad marks blockAbs unusable.
func (f *Facade) MarkBad(blockAbs uint64) error {
	return f.raw.MarkBad(blockAbs)
}

// CheckBad reports whether blockAbs was previously marked bad.
func (f *Facade) CheckBad(blockAbs uint64) (bool, error) {
	return f.raw.CheckBad(blockAbs)
}

// WriteMRAM writes buf at byteOffset in MRAM space.
func (f *Facade) WriteMRAM(byteOffset uint64, buf []byte) error {
	if err := f.raw.WriteMRAM(byteOffset, buf); err != nil {
		return types.NewError("writeMRAM", types.KindBadFlash, err)
	}
	return nil
}

// ReadMRAM reads len(buf) bytes from byteOffset in MRAM space.
func (f *Facade) ReadMRAM(byteOffset uint64, buf []byte) error {
	if err := f.raw.ReadMRAM(byteOffset, buf); err != nil {
		return types.NewError("readMRAM", types.KindBadFlash, err)
	}
	return nil
}
