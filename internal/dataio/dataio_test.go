package dataio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/areas"
	"github.com/cirromulus/paffs-go/internal/btree"
	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/gc"
	"github.com/cirromulus/paffs-go/internal/pac"
	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/summary"
	"github.com/cirromulus/paffs-go/internal/types"
)

func newTestIO(t *testing.T) (*IO, *types.Inode) {
	t.Helper()
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)

	drv := driver.New(raw, nil)
	sum := summary.New(param, drv, nil)
	am := areas.New(param, drv, sum, nil)
	sum.SetAreaManager(am)
	collector := gc.New(param, drv, am, sum, nil)
	am.SetGC(collector)
	tree := btree.New(param, drv, am, sum, nil)
	pacCache := pac.New(param, drv, am, sum, tree, nil)
	io := New(param, drv, am, sum, pacCache, nil)

	inode := &types.Inode{No: 1, Type: types.InodeTypeFile}
	require.NoError(t, tree.InsertInode(*inode))
	return io, inode
}

func TestWriteThenReadWithinOnePage(t *testing.T) {
	io, inode := newTestIO(t)
	require.NoError(t, io.WriteInodeData(inode, 0, []byte("hello")))
	require.Equal(t, uint64(5), inode.Size)

	buf := make([]byte, 5)
	n, err := io.ReadInodeData(inode, 0, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
}

func TestReadPastEndReturnsZero(t *testing.T) {
	io, inode := newTestIO(t)
	require.NoError(t, io.WriteInodeData(inode, 0, []byte("hi")))

	buf := make([]byte, 1)
	n, err := io.ReadInodeData(inode, 20, buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestWriteSpanningMultiplePagesRoundTrips(t *testing.T) {
	io, inode := newTestIO(t)
	pageSize := int(types.DefaultParam().DataBytesPerPage)
	data := make([]byte, pageSize*3+17)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, io.WriteInodeData(inode, 0, data))

	got := make([]byte, len(data))
	n, err := io.ReadInodeData(inode, 0, got)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, got)
}

func TestOverwriteMiddleOfExistingData(t *testing.T) {
	io, inode := newTestIO(t)
	require.NoError(t, io.WriteInodeData(inode, 0, []byte("0123456789")))
	require.NoError(t, io.WriteInodeData(inode, 3, []byte("XYZ")))

	buf := make([]byte, 10)
	_, err := io.ReadInodeData(inode, 0, buf)
	require.NoError(t, err)
	require.Equal(t, "012XYZ6789", string(buf))
}

func TestTruncateShrinkThenGrowReadsZeroTail(t *testing.T) {
	io, inode := newTestIO(t)
	require.NoError(t, io.WriteInodeData(inode, 0, []byte("Hallo")))
	require.NoError(t, io.Truncate(inode, 2))
	require.Equal(t, uint64(2), inode.Size)

	require.NoError(t, io.Truncate(inode, 5))
	buf := make([]byte, 5)
	_, err := io.ReadInodeData(inode, 0, buf)
	require.NoError(t, err)
	require.Equal(t, "Ha\x00\x00\x00", string(buf))
}

func TestTruncateToZeroFreesAllReservedPages(t *testing.T) {
	io, inode := newTestIO(t)
	pageSize := int(types.DefaultParam().DataBytesPerPage)
	require.NoError(t, io.WriteInodeData(inode, 0, make([]byte, pageSize*3)))
	require.True(t, inode.Reserved > 0)

	require.NoError(t, io.Truncate(inode, 0))
	require.Equal(t, uint64(0), inode.Size)
	require.Equal(t, uint32(0), inode.Reserved)
}
