package model

// MergedRow is one row per RawRecord in the flat output dataset: the
// record's metadata joined with the analysis and cluster fields of its
// owning LookupEntry. Purely derived — regenerated from the raw set and the
// lookup table on every output build, never independently mutated.
type MergedRow struct {
	CommentID    string `json:"comment_id" csv:"comment_id"`
	Title        string `json:"title,omitempty" csv:"title"`
	Category     string `json:"category,omitempty" csv:"category"`
	DocketID     string `json:"docket_id,omitempty" csv:"docket_id"`
	PostedDate   string `json:"posted_date,omitempty" csv:"posted_date"`
	ReceivedDate string `json:"received_date,omitempty" csv:"received_date"`
	Submitter    string `json:"submitter,omitempty" csv:"submitter"`
	Organization string `json:"organization,omitempty" csv:"organization"`
	State        string `json:"state,omitempty" csv:"state"`

	LookupID      string `json:"lookup_id" csv:"lookup_id"`
	TruncatedText string `json:"truncated_text" csv:"truncated_text"`
	CommentCount  int    `json:"comment_count" csv:"comment_count"`

	Stance    string `json:"stance" csv:"stance"`
	Themes    string `json:"themes" csv:"themes"`
	KeyQuote  string `json:"key_quote" csv:"key_quote"`
	Rationale string `json:"rationale" csv:"rationale"`

	ClusterID string   `json:"cluster_id,omitempty" csv:"cluster_id"`
	PCAX      *float64 `json:"pca_x,omitempty" csv:"pca_x"`
	PCAY      *float64 `json:"pca_y,omitempty" csv:"pca_y"`
}

// RunStatus is the state of a recorded pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunResult summarizes a completed pipeline run for the run log.
type RunResult struct {
	RawRecords  int    `json:"raw_records"`
	UniqueTexts int    `json:"unique_texts"`
	Analyzed    int    `json:"analyzed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}
