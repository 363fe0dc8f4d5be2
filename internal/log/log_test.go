package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloseIsNoopBeforeInit(t *testing.T) {
	require.Nil(t, writers)
	require.NoError(t, Close())
}
