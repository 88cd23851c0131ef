package merger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/ranker"
)

func docs(pairs ...float64) []ranker.ScoredDoc {
	out := make([]ranker.ScoredDoc, 0, len(pairs))
	for i, s := range pairs {
		out = append(out, ranker.ScoredDoc{Doc: index.DocID(i), Score: s})
	}
	return out
}

func ids(in []ranker.ScoredDoc) []index.DocID {
	out := make([]index.DocID, len(in))
	for i, d := range in {
		out[i] = d.Doc
	}
	return out
}

func TestTopK(t *testing.T) {
	in := docs(0.5, 3, 1, 3, 2)
	require.Equal(t, []index.DocID{1, 3, 4}, ids(TopK(in, 3)))
	require.Equal(t, []index.DocID{1, 3, 4, 2, 0}, ids(TopK(in, 10)))
	require.Equal(t, []index.DocID{1}, ids(TopK(in, 1)))
	require.Empty(t, TopK(in, 0))
	require.Empty(t, TopK(nil, 5))
}

func TestTopKEqualScoresKeepsDiscoveryOrder(t *testing.T) {
	in := docs(1, 1, 1, 1, 1)
	require.Equal(t, []index.DocID{0, 1}, ids(TopK(in, 2)))
}
