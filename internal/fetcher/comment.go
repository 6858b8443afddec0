package fetcher

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/model"
	"github.com/civicsignal/docket-cli/pkg/regulations"
)

// CommentFetcher turns regulations.gov comment details into raw pipeline
// records, resolving attachment text inline. An attachment whose content
// cannot be extracted contributes a bracketed marker string instead; the
// marker participates in deduplication like any other text.
type CommentFetcher struct {
	client regulations.Client
}

// NewCommentFetcher wraps a regulations.gov client.
func NewCommentFetcher(client regulations.Client) *CommentFetcher {
	return &CommentFetcher{client: client}
}

// GetComment fetches one comment and its attachments.
func (f *CommentFetcher) GetComment(ctx context.Context, id string) (*model.RawRecord, error) {
	comment, err := f.client.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}

	record := &model.RawRecord{
		ID:          comment.ID,
		CommentText: stripHTML(comment.CommentText),
		Metadata: model.RecordMetadata{
			Title:        comment.Title,
			Category:     comment.Category,
			DocketID:     comment.DocketID,
			PostedDate:   comment.PostedDate,
			ReceivedDate: comment.ReceivedDate,
			Submitter:    comment.Submitter,
			Organization: comment.Organization,
			State:        comment.State,
		},
	}

	for _, att := range comment.Attachments {
		record.AttachmentTexts = append(record.AttachmentTexts, model.AttachmentText{
			Title: att.Title,
			Text:  f.attachmentText(ctx, comment.ID, att),
		})
	}

	return record, nil
}

// attachmentText resolves one attachment to text. Only plain-text formats
// are extracted directly; binary formats and failed downloads yield the
// extraction-failure marker.
func (f *CommentFetcher) attachmentText(ctx context.Context, commentID string, att regulations.Attachment) string {
	format := strings.ToLower(att.Format)
	if format != "txt" && format != "text" {
		return extractionFailed(format)
	}

	data, err := f.client.DownloadAttachment(ctx, att.FileURL)
	if err != nil {
		zap.L().Warn("fetcher: attachment download failed",
			zap.String("comment_id", commentID),
			zap.String("file_url", att.FileURL),
			zap.Error(err),
		)
		return extractionFailed(format)
	}
	if !utf8.Valid(data) {
		return extractionFailed(format)
	}
	return string(data)
}

func extractionFailed(format string) string {
	if format == "" {
		format = "unknown"
	}
	return fmt.Sprintf("[EXTRACTION FAILED: %s]", format)
}

// stripHTML removes the simple markup regulations.gov embeds in comment
// bodies (<br/>, paragraph tags) without pulling in a full HTML parser.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	replacer := strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"<p>", "\n", "</p>", "\n",
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	)
	return strings.TrimSpace(replacer.Replace(s))
}
