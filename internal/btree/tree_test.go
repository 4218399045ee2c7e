package btree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/areas"
	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/gc"
	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/summary"
	"github.com/cirromulus/paffs-go/internal/types"
)

func newTestTree(t *testing.T) *Tree {
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

	return New(param, drv, am, sum, nil)
}

func TestInsertGetInode(t *testing.T) {
	tr := newTestTree(t)
	inode := types.Inode{No: 1, Type: types.InodeTypeFile, Perm: 0o644}
	require.NoError(t, tr.InsertInode(inode))

	got, ok, err := tr.GetInode(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, inode, got)

	_, ok, err = tr.GetInode(2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertDuplicateRejected(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.InsertInode(types.Inode{No: 1, Type: types.InodeTypeFile}))
	require.Error(t, tr.InsertInode(types.Inode{No: 1, Type: types.InodeTypeFile}))
}

func TestUpdateInode(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.InsertInode(types.Inode{No: 1, Perm: 0o644}))
	require.NoError(t, tr.UpdateInode(types.Inode{No: 1, Perm: 0o600}))

	got, ok, err := tr.GetInode(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint8(0o600), got.Perm)

	require.Error(t, tr.UpdateInode(types.Inode{No: 99}))
}

func TestDeleteInode(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.InsertInode(types.Inode{No: 1}))
	require.NoError(t, tr.DeleteInode(1))

	_, ok, err := tr.GetInode(1)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, tr.DeleteInode(1))
}

func TestFindFirstFreeNoTracksMaxInsert(t *testing.T) {
	tr := newTestTree(t)
	no, err := tr.FindFirstFreeNo()
	require.NoError(t, err)
	require.Equal(t, types.InodeNo(1), no)

	for i := types.InodeNo(1); i <= 5; i++ {
		require.NoError(t, tr.InsertInode(types.Inode{No: i}))
	}
	no, err = tr.FindFirstFreeNo()
	require.NoError(t, err)
	require.Equal(t, types.InodeNo(6), no)
}

// TestInsertManyTriggersSplitsAndFlush inserts enough inodes to force
// leaf and branch splits, then flushes and reloads from the persisted
// root to check every inode survives copy-on-write.
func TestInsertManyTriggersSplitsAndFlush(t *testing.T) {
	tr := newTestTree(t)
	const n = 500
	for i := types.InodeNo(1); i <= n; i++ {
		require.NoError(t, tr.InsertInode(types.Inode{No: i, Perm: uint8(i % 8)}))
	}

	root, err := tr.Flush()
	require.NoError(t, err)

	reloaded := newTestTreeSharingDriver(t, tr)
	require.NoError(t, reloaded.LoadRoot(root))

	for i := types.InodeNo(1); i <= n; i++ {
		got, ok, err := reloaded.GetInode(i)
		require.NoError(t, err)
		require.True(t, ok, "inode %d missing after reload", i)
		require.Equal(t, uint8(i%8), got.Perm)
	}
}

// newTestTreeSharingDriver builds a second Tree over the same
// driver/area-manager/summary as tr, the way a real remount re-wires a
// fresh in-memory Tree over the same underlying flash state.
func newTestTreeSharingDriver(t *testing.T, tr *Tree) *Tree {
	t.Helper()
	return New(tr.param, tr.drv, tr.areas, tr.summary, nil)
}

func TestDeleteManyMergesUnderfullNodes(t *testing.T) {
	tr := newTestTree(t)
	const n = 200
	for i := types.InodeNo(1); i <= n; i++ {
		require.NoError(t, tr.InsertInode(types.Inode{No: i}))
	}
	for i := types.InodeNo(1); i <= n; i += 2 {
		require.NoError(t, tr.DeleteInode(i))
	}
	for i := types.InodeNo(1); i <= n; i++ {
		_, ok, err := tr.GetInode(i)
		require.NoError(t, err)
		require.Equal(t, i%2 == 0, ok)
	}
}
