package sources

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTargetURL(t *testing.T) {
	s := Source{URLTemplate: "https://directory.example.com/{region}/area/{geo}/home-services"}
	require.Equal(t,
		"https://directory.example.com/FL/area/Miami-Dade/home-services",
		s.TargetURL("FL", "Miami-Dade"),
	)
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	require.Equal(t, []string{"bizdir", "ca-cslb", "fl-dbpr", "tx-tdlr"}, c.Codes())

	fl, ok := c.Get("fl-dbpr")
	require.True(t, ok)
	require.True(t, fl.Render)
	require.NotEmpty(t, fl.WaitCondition)

	_, ok = c.Get("unknown")
	require.False(t, ok)
}

func TestForRegionStableOrder(t *testing.T) {
	c := Default()

	tx := c.ForRegion("TX")
	require.Len(t, tx, 2)
	require.Equal(t, "bizdir", tx[0].Code)
	require.Equal(t, "tx-tdlr", tx[1].Code)

	require.Empty(t, c.ForRegion("NY"))
}

func TestNewCatalogValidation(t *testing.T) {
	_, err := NewCatalog([]Source{{Name: "missing code"}})
	require.Error(t, err)

	_, err = NewCatalog([]Source{
		{Code: "dup", Regions: []string{"FL"}},
		{Code: "dup", Regions: []string{"TX"}},
	})
	require.Error(t, err)

	c, err := NewCatalog([]Source{{Code: "x", RequestsPerSecond: -1}})
	require.NoError(t, err)
	x, _ := c.Get("x")
	require.EqualValues(t, 1, x.RequestsPerSecond)
}
