// Package model defines the core data types for the docket analysis pipeline.
package model

// AttachmentText is the extracted text of one comment attachment, in the
// order the attachments appear on the submission. Extraction failures
// upstream are represented as a bracketed marker string in Text (for
// example "[EXTRACTION FAILED: pdf]") and are treated as literal text.
type AttachmentText struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// RecordMetadata carries submission metadata through the pipeline untouched.
// It is never interpreted; the output merger copies it onto each MergedRow.
type RecordMetadata struct {
	Title        string `json:"title,omitempty"`
	Category     string `json:"category,omitempty"`
	DocketID     string `json:"docket_id,omitempty"`
	PostedDate   string `json:"posted_date,omitempty"`
	ReceivedDate string `json:"received_date,omitempty"`
	Submitter    string `json:"submitter,omitempty"`
	Organization string `json:"organization,omitempty"`
	State        string `json:"state,omitempty"`
}

// RawRecord is one externally sourced public comment submission. Records are
// created once by the fetch layer and are immutable afterwards, except that
// attachment text extracted asynchronously may be backfilled. Records are
// never deleted; new ones are only appended.
type RawRecord struct {
	ID              string           `json:"id"`
	CommentText     string           `json:"comment_text"`
	AttachmentTexts []AttachmentText `json:"attachment_texts,omitempty"`
	Metadata        RecordMetadata   `json:"metadata"`
}

// RawIDSet returns the set of record IDs in the given slice.
func RawIDSet(records []*RawRecord) map[string]struct{} {
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids[r.ID] = struct{}{}
	}
	return ids
}
