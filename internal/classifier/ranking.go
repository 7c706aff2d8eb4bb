package classifier

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
)

// Recognition is one ranked class from a single inference call.
type Recognition struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Confidence float32 `json:"confidence"`
}

func (r Recognition) String() string {
	return fmt.Sprintf("Title = %s, Confidence = %v", r.Title, r.Confidence)
}

// rankScores keeps scores at or above threshold, orders them by descending
// confidence and returns at most k. Equal confidences keep index order.
// NaN scores never qualify.
func rankScores(scores []float32, labels []string, threshold float32, k int) []Recognition {
	recs := make([]Recognition, 0, min(k, len(scores)))
	for i, score := range scores {
		if !(score >= threshold) {
			continue
		}
		recs = append(recs, Recognition{
			ID:         strconv.Itoa(i),
			Title:      labelAt(labels, i),
			Confidence: score,
		})
	}

	slices.SortStableFunc(recs, func(a, b Recognition) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	if len(recs) > k {
		recs = recs[:k]
	}
	return recs
}
