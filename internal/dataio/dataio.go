// Package dataio implements WriteInodeData/ReadInodeData/Truncate
// (component G): it translates (inode, file offset, length) into page
// reads and writes through the page-address cache, growing or
// shrinking an inode's Size/Reserved bookkeeping as it goes.
package dataio

import (
	"log/slog"
	"time"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// IO implements interfaces.DataIO.
type IO struct {
	param   types.Param
	derived types.Derived
	drv     *driver.Facade
	areas   interfaces.AreaManager
	summary interfaces.SummaryCache
	pac     interfaces.PageAddressCache
	log     *slog.Logger
}

// New creates an IO backed by pac for address resolution.
func New(param types.Param, drv *driver.Facade, areas interfaces.AreaManager, summary interfaces.SummaryCache, pac interfaces.PageAddressCache, log *slog.Logger) *IO {
	if log == nil {
		log = slog.Default()
	}
	return &IO{
		param:   param,
		derived: param.Compute(),
		drv:     drv,
		areas:   areas,
		summary: summary,
		pac:     pac,
		log:     log,
	}
}

func (io *IO) pageSize() uint64 { return uint64(io.param.DataBytesPerPage) }

func (io *IO) allocatePage() (types.Addr, error) {
	pos, err := io.areas.FindWritableArea(types.AreaTypeData)
	if err != nil {
		return types.Addr{}, err
	}
	off, ok, err := io.summary.FindFreePage(pos)
	if err != nil {
		return types.Addr{}, err
	}
	if !ok {
		return types.Addr{}, types.NewError("dataio.allocatePage", types.KindNoSpace, nil)
	}
	addr := types.Addr{Area: pos, Page: off}
	if err := io.summary.SetPageStatus(addr, types.PageUsed); err != nil {
		return types.Addr{}, err
	}
	return addr, nil
}

// WriteInodeData implements interfaces.DataIO.
func (io *IO) WriteInodeData(n *types.Inode, offset uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := io.pac.SetTargetInode(n); err != nil {
		return err
	}
	pageSize := io.pageSize()
	end := offset + uint64(len(buf))
	startPage := offset / pageSize
	endPage := (end + pageSize - 1) / pageSize
	if endPage-startPage > uint64(io.param.MaxPagesPerWrite) {
		return types.NewError("dataio.writeInodeData", types.KindInvalidInput, nil)
	}

	for p := startPage; p < endPage; p++ {
		pageStart := p * pageSize
		pageEnd := pageStart + pageSize

		existing, err := io.pac.GetPage(p)
		if err != nil {
			return err
		}
		page := make([]byte, pageSize)
		if !existing.Empty() {
			if err := io.drv.ReadPage(io.areas.PhysicalPage(existing.Area, existing.Page), page); err != nil {
				return err
			}
		}

		loAbs := max(offset, pageStart)
		hiAbs := min(end, pageEnd)
		copy(page[loAbs-pageStart:hiAbs-pageStart], buf[loAbs-offset:hiAbs-offset])

		newAddr, err := io.allocatePage()
		if err != nil {
			return err
		}
		if err := io.drv.WritePage(io.areas.PhysicalPage(newAddr.Area, newAddr.Page), page); err != nil {
			return err
		}
		if !existing.Empty() {
			if err := io.summary.SetPageStatus(existing, types.PageDirty); err != nil {
				return err
			}
		} else {
			n.Reserved++
		}
		if err := io.pac.SetPage(p, newAddr); err != nil {
			return err
		}
	}

	if end > n.Size {
		n.Size = end
	}
	n.Modified = time.Now()
	return io.pac.Commit()
}

// ReadInodeData implements interfaces.DataIO.
func (io *IO) ReadInodeData(n *types.Inode, offset uint64, buf []byte) (int, error) {
	if offset >= n.Size || len(buf) == 0 {
		return 0, nil
	}
	if err := io.pac.SetTargetInode(n); err != nil {
		return 0, err
	}
	toRead := uint64(len(buf))
	if offset+toRead > n.Size {
		toRead = n.Size - offset
	}
	pageSize := io.pageSize()
	end := offset + toRead
	startPage := offset / pageSize
	endPage := (end + pageSize - 1) / pageSize

	for p := startPage; p < endPage; p++ {
		pageStart := p * pageSize
		pageEnd := pageStart + pageSize

		loAbs := max(offset, pageStart)
		hiAbs := min(end, pageEnd)

		addr, err := io.pac.GetPage(p)
		if err != nil {
			return 0, err
		}
		if addr.Empty() {
			for i := loAbs; i < hiAbs; i++ {
				buf[i-offset] = 0
			}
			continue
		}
		page := make([]byte, pageSize)
		if err := io.drv.ReadPage(io.areas.PhysicalPage(addr.Area, addr.Page), page); err != nil {
			return 0, err
		}
		copy(buf[loAbs-offset:hiAbs-offset], page[loAbs-pageStart:hiAbs-pageStart])
	}
	return int(toRead), nil
}

// Truncate implements interfaces.DataIO.
func (io *IO) Truncate(n *types.Inode, size uint64) error {
	if err := io.pac.SetTargetInode(n); err != nil {
		return err
	}
	pageSize := io.pageSize()
	oldPages := (n.Size + pageSize - 1) / pageSize
	newPages := (size + pageSize - 1) / pageSize

	if newPages < oldPages {
		for p := newPages; p < oldPages; p++ {
			addr, err := io.pac.GetPage(p)
			if err != nil {
				return err
			}
			if addr.Empty() {
				continue
			}
			if err := io.summary.SetPageStatus(addr, types.PageDirty); err != nil {
				return err
			}
			n.Reserved--
		}
		if err := io.pac.DeletePage(newPages, oldPages); err != nil {
			return err
		}
	}

	if size%pageSize != 0 && size < n.Size {
		// zero the tail of the new last page so a subsequent grow
		// back over the same page doesn't resurrect stale bytes.
		lastPage := size / pageSize
		addr, err := io.pac.GetPage(lastPage)
		if err != nil {
			return err
		}
		if !addr.Empty() {
			page := make([]byte, pageSize)
			if err := io.drv.ReadPage(io.areas.PhysicalPage(addr.Area, addr.Page), page); err != nil {
				return err
			}
			tailStart := size % pageSize
			for i := tailStart; i < pageSize; i++ {
				page[i] = 0
			}
			newAddr, err := io.allocatePage()
			if err != nil {
				return err
			}
			if err := io.drv.WritePage(io.areas.PhysicalPage(newAddr.Area, newAddr.Page), page); err != nil {
				return err
			}
			if err := io.summary.SetPageStatus(addr, types.PageDirty); err != nil {
				return err
			}
			if err := io.pac.SetPage(lastPage, newAddr); err != nil {
				return err
			}
		}
	}

	n.Size = size
	n.Modified = time.Now()
	return io.pac.Commit()
}
