// Package ranker scores documents against matched terms with Okapi BM25.
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
)

const (
	k1 = 1.2
	b  = 0.75
)

type ScoredDoc struct {
	Doc   index.DocID
	Score float64
}

// Params describe the collection the postings come from.
type Params struct {
	TotalDocs    int64
	AvgDocLength float64
}

// Rank scores every document appearing in postingsPerTerm. A document
// matching several terms gets the sum of its per-term scores. The result is
// unordered.
func Rank(postingsPerTerm []index.PostingList, params Params, docLength func(index.DocID) int) []ScoredDoc {
	scores := make(map[index.DocID]float64)
	for _, postings := range postingsPerTerm {
		idf := IDF(params.TotalDocs, int64(len(postings)))
		for _, p := range postings {
			scores[p.DocID] += idf * TFNorm(float64(p.Frequency), float64(docLength(p.DocID)), params.AvgDocLength)
		}
	}
	out := make([]ScoredDoc, 0, len(scores))
	for doc, score := range scores {
		out = append(out, ScoredDoc{Doc: doc, Score: score})
	}
	return out
}

// IDF is the Lucene-style BM25 inverse document frequency. It is always
// positive, even for terms present in every document.
func IDF(totalDocs, docFreq int64) float64 {
	return math.Log(1 + (float64(totalDocs)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))
}

func TFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	denominator := termFreq + k1*(1-b+b*docLength/avgDocLength)
	return termFreq * (k1 + 1) / denominator
}

// Better reports whether a ranks before c: higher score first, then lower
// doc ID, which is discovery order.
func Better(a, c ScoredDoc) bool {
	if a.Score != c.Score {
		return a.Score > c.Score
	}
	return a.Doc < c.Doc
}
