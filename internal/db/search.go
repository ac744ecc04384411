package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string            // alias of the vector field, "vector" when empty
	TagFilters   map[string]string // exact-match pre-filters, field -> value
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Distance is the raw __vector_score of the metric.
type SearchEntry struct {
	Key      string
	Distance float64
	Fields   map[string]string
}
