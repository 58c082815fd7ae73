package utils_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xsamp/internal/utils"
)

func TestLenSyncMap(t *testing.T) {
	var m sync.Map
	require.Equal(t, 0, utils.LenSyncMap(&m))

	m.Store("foo", 1)
	m.Store("bar", 2)
	m.Store("baz", 3)

	require.Equal(t, 3, utils.LenSyncMap(&m))
}
