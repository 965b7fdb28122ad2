package schema

// RunSummary is the machine-readable record of one extraction run.
type RunSummary struct {
	Tool     string       `json:"tool"`
	Version  string       `json:"version"`
	Input    RunInput     `json:"input"`
	Counts   RunCounts    `json:"counts"`
	Outcomes OutcomeTally `json:"outcomes"`
	Meta     RunMeta      `json:"meta"`
}

// RunInput captures the parameters used for this run.
type RunInput struct {
	Document     string  `json:"document"`
	DocumentHash string  `json:"document_hash"` // SHA-256 of the raw file bytes
	Pages        int     `json:"pages"`
	Profile      string  `json:"profile"`
	TestMode     bool    `json:"test_mode"`
	Dedupe       bool    `json:"dedupe"`
	DupThreshold float64 `json:"dup_threshold"`
	MinAlignment float64 `json:"min_alignment"`
}

// RunCounts holds the stage-by-stage counts of a run.
type RunCounts struct {
	Requirements      int `json:"requirements"`
	GeneratedStories  int `json:"generated_stories"`
	Aligned           int `json:"aligned"`
	NeedsReview       int `json:"needs_review"`
	DuplicatePairs    int `json:"duplicate_pairs"`
	DuplicatesDropped int `json:"duplicates_dropped"`
	FinalStories      int `json:"final_stories"`
}

// OutcomeTally counts per-requirement generation outcomes.
type OutcomeTally struct {
	Generated int `json:"generated"`
	Abstained int `json:"abstained"`
	Malformed int `json:"malformed"`
	Invalid   int `json:"invalid"`
	TimedOut  int `json:"timed_out"`
	Failed    int `json:"failed"`
}

// RunMeta holds runtime metadata about the providers used.
type RunMeta struct {
	Model       string  `json:"model"`
	EmbedModel  string  `json:"embed_model"`
	Temperature float64 `json:"temperature"`
}
