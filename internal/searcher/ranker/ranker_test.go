package ranker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
)

func TestRankPrefersFrequentTerm(t *testing.T) {
	postings := []index.PostingList{{
		{DocID: 0, Frequency: 1},
		{DocID: 1, Frequency: 4},
	}}
	lengths := map[index.DocID]int{0: 10, 1: 10}
	scored := Rank(postings, Params{TotalDocs: 3, AvgDocLength: 10}, func(d index.DocID) int { return lengths[d] })
	require.Len(t, scored, 2)

	byDoc := map[index.DocID]float64{}
	for _, s := range scored {
		require.Greater(t, s.Score, 0.0)
		byDoc[s.Doc] = s.Score
	}
	require.Greater(t, byDoc[1], byDoc[0])
}

func TestRankSumsTerms(t *testing.T) {
	one := []index.PostingList{{{DocID: 0, Frequency: 1}}}
	two := []index.PostingList{{{DocID: 0, Frequency: 1}}, {{DocID: 0, Frequency: 1}}}
	p := Params{TotalDocs: 2, AvgDocLength: 5}
	length := func(index.DocID) int { return 5 }
	require.InDelta(t, 2*Rank(one, p, length)[0].Score, Rank(two, p, length)[0].Score, 1e-9)
}

func TestIDFPositiveForUbiquitousTerm(t *testing.T) {
	require.Greater(t, IDF(5, 5), 0.0)
	require.Greater(t, IDF(5, 1), IDF(5, 5))
}

func TestBetterBreaksTiesByDoc(t *testing.T) {
	require.True(t, Better(ScoredDoc{Doc: 1, Score: 1}, ScoredDoc{Doc: 2, Score: 1}))
	require.False(t, Better(ScoredDoc{Doc: 1, Score: 1}, ScoredDoc{Doc: 0, Score: 2}))
}
