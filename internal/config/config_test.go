package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirromulus/paffs-go/internal/types"
)

func TestValidateRejectsUndersizedPage(t *testing.T) {
	p := types.DefaultParam()
	p.DataBytesPerPage = 4
	require.Error(t, Validate(p))
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, Validate(types.DefaultParam()))
}

func TestValidateRejectsTooFewBlocks(t *testing.T) {
	p := types.DefaultParam()
	p.BlocksTotal = p.BlocksPerArea * 2
	require.Error(t, Validate(p))
}
