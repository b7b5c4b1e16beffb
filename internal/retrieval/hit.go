// Package retrieval merges candidate passages from the full-text index, the relational
// keyword store and the vector store into one normalized, ranked candidate list.
package retrieval

// Source identifies which backend produced a hit.
type Source string

const (
	SourcePrimaryText Source = "primary_text"
	SourceRelational  Source = "relational"
	SourceVector      Source = "vector"
)

// Hit is one retrieved candidate passage. Hits are treated as values: later stages
// copy them rather than modify them in place.
type Hit struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source Source  `json:"source"`
}

// Status tells callers whether an empty or short result is genuine or the
// product of a failing backend.
type Status string

const (
	// StatusOK means hits were found and every source answered.
	StatusOK Status = "ok"
	// StatusDegraded means a source failed, nothing was configured, or mock data was served.
	StatusDegraded Status = "degraded"
	// StatusEmpty means every source answered and nothing matched.
	StatusEmpty Status = "empty"
)

// Result is the outcome of one Search call. Items carry hybrid (normalized) scores.
type Result struct {
	Items     []Hit    `json:"items"`
	ElapsedMs int64    `json:"elapsedMs"`
	Notes     []string `json:"diagnosticNotes"`
	Status    Status   `json:"status"`
	Mock      bool     `json:"mock"`
}
