package areas

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/gc"
	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/summary"
	"github.com/cirromulus/paffs-go/internal/types"
)

func newWiredManager(t *testing.T) *Manager {
	t.Helper()
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)

	drv := driver.New(raw, nil)
	sum := summary.New(param, drv, nil)
	am := New(param, drv, sum, nil)
	sum.SetAreaManager(am)
	collector := gc.New(param, drv, am, sum, nil)
	am.SetGC(collector)
	return am
}

func TestFindWritableAreaClaimsEmptySlot(t *testing.T) {
	am := newWiredManager(t)
	pos, err := am.FindWritableArea(types.AreaTypeData)
	require.NoError(t, err)
	require.Equal(t, types.AreaTypeData, am.Area(pos).Type)
	require.Equal(t, types.AreaStatusActive, am.Area(pos).Status)

	active, ok := am.ActiveArea(types.AreaTypeData)
	require.True(t, ok)
	require.Equal(t, pos, active)
}

func TestFindWritableAreaReusesActiveAreaWithSpace(t *testing.T) {
	am := newWiredManager(t)
	first, err := am.FindWritableArea(types.AreaTypeData)
	require.NoError(t, err)
	second, err := am.FindWritableArea(types.AreaTypeData)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCloseAreaClearsActiveEntry(t *testing.T) {
	am := newWiredManager(t)
	pos, err := am.FindWritableArea(types.AreaTypeIndex)
	require.NoError(t, err)
	require.NoError(t, am.CloseArea(pos))

	_, ok := am.ActiveArea(types.AreaTypeIndex)
	require.False(t, ok)
	require.Equal(t, types.AreaStatusClosed, am.Area(pos).Status)
}

func TestSwapExchangesPhysicalPosition(t *testing.T) {
	am := newWiredManager(t)
	a, err := am.FindWritableArea(types.AreaTypeData)
	require.NoError(t, err)
	b, ok := am.ClaimEmptyUnsetArea()
	require.True(t, ok)

	beforeA, _ := am.PhysicalBlockRange(a)
	beforeB, _ := am.PhysicalBlockRange(b)
	require.NoError(t, am.Swap(a, b))
	afterA, _ := am.PhysicalBlockRange(a)
	afterB, _ := am.PhysicalBlockRange(b)

	require.Equal(t, beforeA, afterB)
	require.Equal(t, beforeB, afterA)
}

func TestRetireMarksAreaRetiredAndUnsetsActive(t *testing.T) {
	am := newWiredManager(t)
	pos, err := am.FindWritableArea(types.AreaTypeData)
	require.NoError(t, err)
	require.NoError(t, am.Retire(pos))

	require.Equal(t, types.AreaTypeRetired, am.Area(pos).Type)
	_, ok := am.ActiveArea(types.AreaTypeData)
	require.False(t, ok)
}

func TestSetAreaMapRestoresActiveAreas(t *testing.T) {
	am := newWiredManager(t)
	pos, err := am.FindWritableArea(types.AreaTypeData)
	require.NoError(t, err)

	snapshot := am.AreaMap()
	am.SetAreaMap(snapshot)

	active, ok := am.ActiveArea(types.AreaTypeData)
	require.True(t, ok)
	require.Equal(t, pos, active)
}

func TestMarkAsGarbageBufferThenGarbageBufferArea(t *testing.T) {
	am := newWiredManager(t)
	pos, ok := am.ClaimEmptyUnsetArea()
	require.True(t, ok)
	require.NoError(t, am.MarkAsGarbageBuffer(pos))

	got, ok := am.GarbageBufferArea()
	require.True(t, ok)
	require.Equal(t, pos, got)
}
