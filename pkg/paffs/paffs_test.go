package paffs

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/device"
	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/types"
)

func newTestFS(t *testing.T) (*FileSystem, types.Param) {
	t.Helper()
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)
	fs, err := Format(raw, param, device.JournalBackendMRAM, 0, 4096, nil)
	require.NoError(t, err)
	return fs, param
}

// TestCreateWriteRead follows spec.md scenario 1: open+write "Hallo",
// seek past end reads zero, seek from the end recovers the original
// bytes.
func TestCreateWriteRead(t *testing.T) {
	fs, _ := newTestFS(t)

	f, err := fs.Open("/file", true)
	require.NoError(t, err)
	require.NoError(t, f.Write([]byte("Hallo")))

	_, err = f.Seek(20, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 1)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(0), buf[0])

	_, err = f.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	tail := make([]byte, 5)
	n, err = f.Read(tail)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "Hallo", string(tail))
	require.NoError(t, f.Close())
}

func TestMkDirNestedAndReadDir(t *testing.T) {
	fs, _ := newTestFS(t)

	require.NoError(t, fs.MkDir("/a"))
	require.NoError(t, fs.MkDir("/a/b"))
	require.NoError(t, fs.Touch("/a/b/file"))

	dir, err := fs.OpenDir("/a/b")
	require.NoError(t, err)
	name, _, ok := dir.ReadDir()
	require.True(t, ok)
	require.Equal(t, "file", name)
	_, _, ok = dir.ReadDir()
	require.False(t, ok)
	require.NoError(t, dir.CloseDir())

	info, err := fs.GetObjInfo("/a/b/file")
	require.NoError(t, err)
	require.Equal(t, types.InodeTypeFile, info.Type)
	require.Equal(t, uint64(0), info.Size)
}

func TestMkDirRejectsDuplicateName(t *testing.T) {
	fs, _ := newTestFS(t)
	require.NoError(t, fs.MkDir("/a"))
	require.Error(t, fs.MkDir("/a"))
}

func TestRemoveRejectsNonEmptyDirectory(t *testing.T) {
	fs, _ := newTestFS(t)
	require.NoError(t, fs.MkDir("/a"))
	require.NoError(t, fs.Touch("/a/file"))
	require.Error(t, fs.Remove("/a"))
	require.NoError(t, fs.Remove("/a/file"))
	require.NoError(t, fs.Remove("/a"))
}

func TestMountIdempotence(t *testing.T) {
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)

	fs, err := Format(raw, param, device.JournalBackendMRAM, 0, 4096, nil)
	require.NoError(t, err)
	require.NoError(t, fs.MkDir("/a"))
	f, err := fs.Open("/file", true)
	require.NoError(t, err)
	require.NoError(t, f.Write([]byte("Hallo")))
	require.NoError(t, fs.Unmount())

	fs2, err := Mount(raw, param, device.JournalBackendMRAM, 0, 4096, nil)
	require.NoError(t, err)
	info, err := fs2.GetObjInfo("/a")
	require.NoError(t, err)
	require.Equal(t, types.InodeTypeDir, info.Type)

	f2, err := fs2.Open("/file", false)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := f2.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "Hallo", string(buf))
	require.NoError(t, fs2.Unmount())
}
