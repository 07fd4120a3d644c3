// Package ranker scores documents against a query with classic TF-IDF.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/index"
)

type ScoredDoc struct {
	DocID int64   `json:"doc_id"`
	Score float64 `json:"score"`
	// MatchedTF is the raw term frequency summed over every matched query
	// token. It breaks score ties.
	MatchedTF int64 `json:"matched_tf"`
}

// Match is one query token that was found in the index. A token repeated in
// the query appears once per occurrence.
type Match struct {
	Segment  index.Segment
	Postings index.PostingList
}

// Rank accumulates tf*idf per document over all matches and orders the
// documents by score, then by MatchedTF, then by ascending id, all
// descending except the id. A positive limit truncates the result.
func Rank(matches []Match, totalDocs int64, limit int) []ScoredDoc {
	byDoc := make(map[int64]*ScoredDoc)
	for _, m := range matches {
		idf := IDF(totalDocs, m.Segment.DF)
		for _, p := range m.Postings {
			d, ok := byDoc[p.ArticleID]
			if !ok {
				d = &ScoredDoc{DocID: p.ArticleID}
				byDoc[p.ArticleID] = d
			}
			d.Score += float64(p.TF) * idf
			d.MatchedTF += p.TF
		}
	}

	result := make([]ScoredDoc, 0, len(byDoc))
	for _, d := range byDoc {
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		if result[i].MatchedTF != result[j].MatchedTF {
			return result[i].MatchedTF > result[j].MatchedTF
		}
		return result[i].DocID < result[j].DocID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// IDF is ln(N/df). It is 0 when either count is not positive.
func IDF(totalDocs, docFreq int64) float64 {
	if totalDocs <= 0 || docFreq <= 0 {
		return 0
	}
	return math.Log(float64(totalDocs) / float64(docFreq))
}
