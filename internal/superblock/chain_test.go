package superblock

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

func interfacesSuperIndexFixture(root types.Addr) interfaces.SuperIndex {
	return interfaces.SuperIndex{
		Rootnode: root,
		AreaMap:  []types.Area{{Type: types.AreaTypeSuperblock, Status: types.AreaStatusActive}},
		ActiveAreas: map[types.AreaType]types.AreaPos{
			types.AreaTypeSuperblock: 0,
		},
		Summaries: map[types.AreaPos]types.SummaryEntry{},
	}
}

func newTestChain(t *testing.T) (*Chain, types.Param) {
	t.Helper()
	param := types.DefaultParam()
	raw, err := simdriver.New(filepath.Join(t.TempDir(), "nand.img"), param, 4096)
	require.NoError(t, err)
	drv := driver.New(raw, nil)
	sum := summary.New(param, drv, nil)
	am := areas.New(param, drv, sum, nil)
	sum.SetAreaManager(am)

	c := New(param, drv, am, sum, nil)
	require.NoError(t, c.Format())
	return c, param
}

func TestChainCommitThenScanRecoversLatest(t *testing.T) {
	c, _ := newTestChain(t)

	root1 := types.Addr{Area: 3, Page: 5}
	c.RegisterRootnode(root1)
	idx := interfacesSuperIndexFixture(root1)
	require.NoError(t, c.Commit(idx))

	root2 := types.Addr{Area: 7, Page: 1}
	c.RegisterRootnode(root2)
	idx2 := interfacesSuperIndexFixture(root2)
	require.NoError(t, c.Commit(idx2))

	scanned, err := c.Scan()
	require.NoError(t, err)
	require.Equal(t, root2, scanned.Rootnode)
	require.Equal(t, uint64(2), scanned.Serial)
}

func TestChainSwitchesBlockWhenFull(t *testing.T) {
	c, param := newTestChain(t)
	generation := c.pagesPerGeneration(1)
	commits := int(param.PagesPerBlock/generation) + 2

	var lastRoot types.Addr
	for i := 0; i < commits; i++ {
		lastRoot = types.Addr{Area: 3, Page: uint32(i + 1)}
		c.RegisterRootnode(lastRoot)
		require.NoError(t, c.Commit(interfacesSuperIndexFixture(lastRoot)))
	}

	scanned, err := c.Scan()
	require.NoError(t, err)
	require.Equal(t, lastRoot, scanned.Rootnode)
}
