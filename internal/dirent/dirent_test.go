package dirent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	entries := []Entry{
		{InodeNo: 1, Name: "a"},
		{InodeNo: 2, Name: "bb"},
		{InodeNo: 3, Name: ""},
	}
	buf, err := Encode(entries)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestEncodeDecodeEmpty(t *testing.T) {
	buf, err := Encode(nil)
	require.NoError(t, err)
	got, err := Decode(buf)
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = Decode(nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestEncodeRejectsNameTooLong(t *testing.T) {
	_, err := Encode([]Entry{{InodeNo: 1, Name: strings.Repeat("x", MaxNameLen+1)}})
	require.ErrorIs(t, err, types.ErrNameTooLong)
}

func TestDecodeRejectsTruncatedStream(t *testing.T) {
	buf, err := Encode([]Entry{{InodeNo: 1, Name: "file"}})
	require.NoError(t, err)
	_, err = Decode(buf[:len(buf)-2])
	require.Error(t, err)
}

func TestFindAndRemove(t *testing.T) {
	entries := []Entry{{InodeNo: 1, Name: "a"}, {InodeNo: 2, Name: "b"}}

	e, ok := Find(entries, "b")
	require.True(t, ok)
	require.Equal(t, types.InodeNo(2), e.InodeNo)

	_, ok = Find(entries, "missing")
	require.False(t, ok)

	remaining := Remove(entries, "a")
	require.Equal(t, []Entry{{InodeNo: 2, Name: "b"}}, remaining)
}
