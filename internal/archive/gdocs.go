package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// GoogleDocs prepends entries to a Google Docs document with one batchUpdate
// per record. New entries go to index 1, so the newest is on top.
type GoogleDocs struct {
	svc        *docs.Service
	documentID string
}

// NewGoogleDocs builds the archiver. opts are passed to docs.NewService;
// a credentials file is normally supplied via option.WithCredentialsFile.
func NewGoogleDocs(ctx context.Context, documentID string, opts ...option.ClientOption) (*GoogleDocs, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, errors.New("archive: document id is required")
	}
	opts = append([]option.ClientOption{option.WithScopes(docs.DocumentsScope)}, opts...)
	svc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: create docs service: %w", err)
	}
	return &GoogleDocs{svc: svc, documentID: documentID}, nil
}

// Append implements Archiver. The reference is "<documentID>@<revision>" when
// the API reports a revision, otherwise the document id.
func (g *GoogleDocs) Append(ctx context.Context, rec Record) (string, error) {
	text := FormatRecord(rec)
	// Docs indexes count UTF-16 code units.
	end := int64(1 + len(utf16.Encode([]rune(text))))

	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{
			{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: 1},
					Text:     text,
				},
			},
			{
				UpdateTextStyle: &docs.UpdateTextStyleRequest{
					Range: &docs.Range{StartIndex: 1, EndIndex: end},
					TextStyle: &docs.TextStyle{
						FontSize: &docs.Dimension{Magnitude: 11, Unit: "PT"},
					},
					Fields: "fontSize",
				},
			},
		},
	}

	resp, err := g.svc.Documents.BatchUpdate(g.documentID, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("archive: batch update: %w", err)
	}
	ref := g.documentID
	if resp.DocumentId != "" {
		ref = resp.DocumentId
	}
	if resp.WriteControl != nil && resp.WriteControl.RequiredRevisionId != "" {
		ref += "@" + resp.WriteControl.RequiredRevisionId
	}
	return ref, nil
}
