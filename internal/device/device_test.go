package device

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/types"
)

var noopHandlers = interfaces.TopicHandlers{
	Apply:          map[types.Topic]interfaces.TopicHandler{},
	Uncheckpointed: map[types.Topic]interfaces.UncheckpointedHandler{},
}

func TestFormatThenMountRecoversRoot(t *testing.T) {
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)

	d := New(raw, param, JournalBackendMRAM, 0, 4096, nil)
	require.NoError(t, d.Format())

	no, err := d.Tree().FindFirstFreeNo()
	require.NoError(t, err)
	inode := types.Inode{No: no, Type: types.InodeTypeDir, Perm: 0o755}
	require.NoError(t, d.Tree().InsertInode(inode))
	require.NoError(t, d.Unmount())

	// A fresh Device wired over the same backing driver, as at a real
	// remount: every in-memory cache starts empty and must be rebuilt
	// from what Unmount committed to flash.
	d2 := New(raw, param, JournalBackendMRAM, 0, 4096, nil)
	require.NoError(t, d2.Mount(noopHandlers))

	got, ok, err := d2.Tree().GetInode(no)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, inode.Perm, got.Perm)
}

func TestUnmountWithoutMountFails(t *testing.T) {
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)

	d := New(raw, param, JournalBackendMRAM, 0, 4096, nil)
	require.NoError(t, d.Format())
	require.NoError(t, d.Unmount())
	require.Error(t, d.Unmount())
}
