package domain

// Retrieval defaults tuned for general-purpose sentence embedding models.
const (
	DefaultChunkSize     = 3
	DefaultMaxResults    = 3
	DefaultMinSimilarity = 0.4
	DefaultMaxDistance   = 0.8
)

// RetrievalParams holds the per-call ranking knobs of a search.
type RetrievalParams struct {
	MaxResults    int
	MinSimilarity float64
	MaxDistance   float64
}

// DefaultRetrievalParams returns the built-in ranking knobs.
func DefaultRetrievalParams() RetrievalParams {
	return RetrievalParams{
		MaxResults:    DefaultMaxResults,
		MinSimilarity: DefaultMinSimilarity,
		MaxDistance:   DefaultMaxDistance,
	}
}
