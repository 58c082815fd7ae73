package addr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xsamp/pkg/addr"
)

func TestAddressRangeWidth(t *testing.T) {
	r := addr.NewAddressRange(0x1000, 0x1004)
	require.Equal(t, uint64(4), r.Width())

	empty := addr.NewAddressRange(0x2000, 0x2000)
	require.True(t, empty.IsEmpty())
	require.Equal(t, uint64(0), empty.Width())
}

func TestAddressRangeContains(t *testing.T) {
	r := addr.NewAddressRange(0x100, 0x200)
	require.True(t, r.Contains(0x100))
	require.True(t, r.Contains(0x1ff))
	require.False(t, r.Contains(0x200))
	require.False(t, r.Contains(0xff))
}

func TestAddressRangeIntersection(t *testing.T) {
	a := addr.NewAddressRange(0x100, 0x200)
	b := addr.NewAddressRange(0x150, 0x250)

	got, ok := a.Intersection(b)
	require.True(t, ok)
	require.Equal(t, addr.NewAddressRange(0x150, 0x200), got)

	c := addr.NewAddressRange(0x200, 0x300)
	_, ok = a.Intersection(c)
	require.False(t, ok)
}

func TestAddressRangeCompareAndSort(t *testing.T) {
	ranges := []addr.AddressRange{
		addr.NewAddressRange(0x300, 0x400),
		addr.NewAddressRange(0x100, 0x200),
		addr.NewAddressRange(0x100, 0x150),
	}
	addr.SortRanges(ranges)

	require.Equal(t, addr.NewAddressRange(0x100, 0x150), ranges[0])
	require.Equal(t, addr.NewAddressRange(0x100, 0x200), ranges[1])
	require.Equal(t, addr.NewAddressRange(0x300, 0x400), ranges[2])
}

func TestAddressRangeAdjacentUnion(t *testing.T) {
	a := addr.NewAddressRange(0x100, 0x200)
	b := addr.NewAddressRange(0x200, 0x300)
	require.True(t, a.Adjacent(b))
	require.Equal(t, addr.NewAddressRange(0x100, 0x300), a.Union(b))

	c := addr.NewAddressRange(0x400, 0x500)
	require.False(t, a.Adjacent(c))
}
