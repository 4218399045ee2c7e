package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/types"
)

func newTestMRAM(t *testing.T) *MRAM {
	t.Helper()
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)
	drv := driver.New(raw, nil)
	m := NewMRAM(drv, 0, 4096, nil)
	require.NoError(t, m.Open())
	return m
}

func TestMRAMReplayAppliesCheckpointedEntries(t *testing.T) {
	m := newTestMRAM(t)

	var applied []types.InodeNo
	handlers := interfaces.TopicHandlers{
		Apply: map[types.Topic]interfaces.TopicHandler{
			types.TopicInode: func(e types.Entry) error {
				applied = append(applied, e.InodeNo)
				return nil
			},
		},
		Uncheckpointed: map[types.Topic]interfaces.UncheckpointedHandler{},
	}

	require.NoError(t, m.AddEvent(types.Entry{Tag: types.TagInodeRemove, InodeNo: 7}))
	require.NoError(t, m.Checkpoint())

	require.NoError(t, m.ProcessBuffer(handlers))
	require.Equal(t, []types.InodeNo{7}, applied)
}

func TestMRAMReplayOffersUncheckpointedTail(t *testing.T) {
	m := newTestMRAM(t)

	var rolledBack []types.InodeNo
	handlers := interfaces.TopicHandlers{
		Apply: map[types.Topic]interfaces.TopicHandler{},
		Uncheckpointed: map[types.Topic]interfaces.UncheckpointedHandler{
			types.TopicInode: func(e types.Entry) error {
				rolledBack = append(rolledBack, e.InodeNo)
				return nil
			},
		},
	}

	require.NoError(t, m.AddEvent(types.Entry{Tag: types.TagInodeRemove, InodeNo: 9}))
	require.NoError(t, m.ProcessBuffer(handlers))
	require.Equal(t, []types.InodeNo{9}, rolledBack)
}

func TestMRAMClearRewindsCursor(t *testing.T) {
	m := newTestMRAM(t)
	require.NoError(t, m.AddEvent(types.CheckpointEntry()))
	require.NotZero(t, m.cursor.Load())
	require.NoError(t, m.Clear())
	require.Zero(t, m.cursor.Load())
}
