package result

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContainerIsReiterable(t *testing.T) {
	names := map[uint32]string{4: "b.go", 9: "a.go"}
	c := New([]Hit{{Doc: 9, Score: 2}, {Doc: 4, Score: 1}}, 5, func(d uint32) (string, string) {
		return names[d], "/src/" + names[d]
	})

	require.Equal(t, 2, c.NumberOfHits())
	require.Equal(t, 5, c.TotalMatches())

	first := c.Results()
	second := c.Results()
	require.Equal(t, first, second)
	require.Equal(t, []Result{
		{FileName: "a.go", Path: "/src/a.go", Score: 2},
		{FileName: "b.go", Path: "/src/b.go", Score: 1},
	}, first)
}

func TestAllStopsEarly(t *testing.T) {
	c := FromResults([]Result{{FileName: "x"}, {FileName: "y"}, {FileName: "z"}}, 3)
	n := 0
	for range c.All() {
		n++
		break
	}
	require.Equal(t, 1, n)
}

func TestEmpty(t *testing.T) {
	c := Empty()
	require.Zero(t, c.NumberOfHits())
	require.Zero(t, c.TotalMatches())
	require.Empty(t, c.Results())
}

func TestTotalNeverBelowHits(t *testing.T) {
	c := FromResults([]Result{{FileName: "x"}}, 0)
	require.Equal(t, 1, c.TotalMatches())
}
