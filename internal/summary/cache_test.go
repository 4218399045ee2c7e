package summary

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/areas"
	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/gc"
	"github.com/cirromulus/paffs-go/internal/simdriver"
	"github.com/cirromulus/paffs-go/internal/types"
)

func newWiredCache(t *testing.T) (*Cache, *areas.Manager) {
	t.Helper()
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)

	drv := driver.New(raw, nil)
	c := New(param, drv, nil)
	am := areas.New(param, drv, c, nil)
	c.SetAreaManager(am)
	collector := gc.New(param, drv, am, c, nil)
	am.SetGC(collector)
	require.NoError(t, am.InitArea(0, types.AreaTypeData))
	return c, am
}

func TestFreshAreaLoadsAllFree(t *testing.T) {
	c, _ := newWiredCache(t)
	off, ok, err := c.FindFreePage(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0), off)

	status, err := c.GetPageStatus(types.Addr{Area: 0, Page: 0})
	require.NoError(t, err)
	require.Equal(t, types.PageFree, status)
}

func TestSetPageStatusMarksDirty(t *testing.T) {
	c, _ := newWiredCache(t)
	require.NoError(t, c.SetPageStatus(types.Addr{Area: 0, Page: 3}, types.PageUsed))

	status, err := c.GetPageStatus(types.Addr{Area: 0, Page: 3})
	require.NoError(t, err)
	require.Equal(t, types.PageUsed, status)

	e, ok := c.ActiveAreaSummary(0)
	require.True(t, ok)
	require.True(t, e.Dirty)
}

func TestCommitPersistsAcrossReload(t *testing.T) {
	c, am := newWiredCache(t)
	require.NoError(t, c.SetPageStatus(types.Addr{Area: 0, Page: 5}, types.PageUsed))
	require.NoError(t, c.Commit(0))

	e, ok := c.ActiveAreaSummary(0)
	require.True(t, ok)
	require.False(t, e.Dirty)

	reloaded := New(c.param, c.drv, nil)
	reloaded.SetAreaManager(am)
	require.NoError(t, reloaded.LoadAreaSummary(0))
	status, err := reloaded.GetPageStatus(types.Addr{Area: 0, Page: 5})
	require.NoError(t, err)
	require.Equal(t, types.PageUsed, status)
}

func TestSeedInstallsEntriesWithoutFlashRead(t *testing.T) {
	c, _ := newWiredCache(t)
	entry := types.SummaryEntry{Pages: []types.PageStatus{types.PageUsed, types.PageFree}}
	c.Seed(map[types.AreaPos]types.SummaryEntry{7: entry})

	e, ok := c.ActiveAreaSummary(7)
	require.True(t, ok)
	require.True(t, e.AsWritten)
	require.True(t, e.LoadedFromSuperPage)
	require.Equal(t, types.PageUsed, e.Pages[0])
}

func TestDeleteSummaryForgetsEntry(t *testing.T) {
	c, _ := newWiredCache(t)
	_, ok, err := c.FindFreePage(0)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.DeleteSummary(0))
	_, ok = c.ActiveAreaSummary(0)
	require.False(t, ok)
}
