package domain

// Neighbor is one catalog entity returned by the nearest-neighbor index.
// Distance is lower-is-closer.
type Neighbor struct {
	EntityID  string   `json:"entity_id"`
	Distance  float64  `json:"distance"`
	SourceURL string   `json:"source_url"`
	SenseIDs  []string `json:"sense_ids,omitempty"`
}

// RetrievalResult is the ranked neighbor list for one image together with the
// image embedding the neighbors were searched with.
type RetrievalResult struct {
	Embedding []float32  `json:"embedding"`
	Neighbors []Neighbor `json:"neighbors"`
}

type SenseCandidate struct {
	SenseID string  `json:"sense_id"`
	Score   float64 `json:"score"`
}

func SenseIDs(candidates []SenseCandidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.SenseID)
	}
	return out
}
