package gc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/areas"
	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/summary"
	"github.com/cirromulus/paffs-go/internal/types"
)

func newWiredGC(t *testing.T) (*Collector, *areas.Manager, *summary.Cache, *driver.Facade) {
	t.Helper()
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)

	drv := driver.New(raw, nil)
	sum := summary.New(param, drv, nil)
	am := areas.New(param, drv, sum, nil)
	sum.SetAreaManager(am)
	collector := New(param, drv, am, sum, nil)
	am.SetGC(collector)
	return collector, am, sum, drv
}

// TestCollectGarbageRelocatesLivePages marks one page Used and the rest
// of a closed area Dirty, then checks the Used page's bytes survive the
// relocation, the area comes back active with its dirty pages freed.
func TestCollectGarbageRelocatesLivePages(t *testing.T) {
	collector, am, sum, drv := newWiredGC(t)
	derived := types.DefaultParam().Compute()

	pos, err := am.FindWritableArea(types.AreaTypeData)
	require.NoError(t, err)

	payload := make([]byte, types.DefaultParam().DataBytesPerPage)
	copy(payload, []byte("live page"))
	require.NoError(t, drv.WritePage(am.PhysicalPage(pos, 0), payload))
	require.NoError(t, sum.SetPageStatus(types.Addr{Area: pos, Page: 0}, types.PageUsed))
	for i := uint32(1); i < derived.DataPagesPerArea; i++ {
		require.NoError(t, sum.SetPageStatus(types.Addr{Area: pos, Page: i}, types.PageDirty))
	}
	require.NoError(t, am.CloseArea(pos))

	mode, err := collector.CollectGarbage(types.AreaTypeData)
	require.NoError(t, err)
	require.Equal(t, interfaces.GCNormal, mode)

	active, ok := am.ActiveArea(types.AreaTypeData)
	require.True(t, ok)
	require.Equal(t, pos, active)

	got := make([]byte, len(payload))
	require.NoError(t, drv.ReadPage(am.PhysicalPage(pos, 0), got))
	require.Equal(t, payload, got)

	free, err := sum.FreePageCount(pos)
	require.NoError(t, err)
	require.Equal(t, int(derived.DataPagesPerArea-1), free)
}

func TestCollectGarbageErrorsWithNoClosedAreas(t *testing.T) {
	collector, _, _, _ := newWiredGC(t)
	_, err := collector.CollectGarbage(types.AreaTypeData)
	require.Error(t, err)
}
