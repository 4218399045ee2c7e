package pac

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/areas"
	"github.com/cirromulus/paffs-go/internal/btree"
	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/gc"
	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/summary"
	"github.com/cirromulus/paffs-go/internal/types"
)

func newWiredCache(t *testing.T) (*Cache, *btree.Tree) {
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

	c := New(param, drv, am, sum, tree, nil)
	return c, tree
}

func TestSetPageGetPageDirectRange(t *testing.T) {
	c, tree := newWiredCache(t)
	inode := types.Inode{No: 1}
	require.NoError(t, tree.InsertInode(inode))
	require.NoError(t, c.SetTargetInode(&inode))

	addr := types.Addr{Area: 3, Page: 7}
	require.NoError(t, c.SetPage(0, addr))

	got, err := c.GetPage(0)
	require.NoError(t, err)
	require.Equal(t, addr, got)
	require.True(t, c.IsDirty())
}

func TestCommitPersistsThroughIndirectBlock(t *testing.T) {
	c, tree := newWiredCache(t)
	inode := types.Inode{No: 1}
	require.NoError(t, tree.InsertInode(inode))
	require.NoError(t, c.SetTargetInode(&inode))

	beyondDirect := uint64(types.DirectAddrs) + 2
	addr := types.Addr{Area: 1, Page: 9}
	require.NoError(t, c.SetPage(beyondDirect, addr))
	require.NoError(t, c.Commit())
	require.False(t, c.IsDirty())

	stored, ok, err := tree.GetInode(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, stored.Indirect.Empty())

	got, err := c.GetPage(beyondDirect)
	require.NoError(t, err)
	require.Equal(t, addr, got)
}

func TestSwitchingTargetCommitsPreviousDirtyInode(t *testing.T) {
	c, tree := newWiredCache(t)
	a := types.Inode{No: 1}
	b := types.Inode{No: 2}
	require.NoError(t, tree.InsertInode(a))
	require.NoError(t, tree.InsertInode(b))

	require.NoError(t, c.SetTargetInode(&a))
	require.NoError(t, c.SetPage(0, types.Addr{Area: 2, Page: 4}))
	require.NoError(t, c.SetTargetInode(&b))

	stored, ok, err := tree.GetInode(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.Addr{Area: 2, Page: 4}, stored.Direct[0])
}

func TestDeletePageClearsDirectRange(t *testing.T) {
	c, tree := newWiredCache(t)
	inode := types.Inode{No: 1}
	require.NoError(t, tree.InsertInode(inode))
	require.NoError(t, c.SetTargetInode(&inode))
	require.NoError(t, c.SetPage(0, types.Addr{Area: 1, Page: 1}))
	require.NoError(t, c.SetPage(1, types.Addr{Area: 1, Page: 2}))

	require.NoError(t, c.DeletePage(0, 2))

	got0, err := c.GetPage(0)
	require.NoError(t, err)
	require.True(t, got0.Empty())
	got1, err := c.GetPage(1)
	require.NoError(t, err)
	require.True(t, got1.Empty())
}
