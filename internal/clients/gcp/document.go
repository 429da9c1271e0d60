package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/neurobridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// Document is the PDF_PREPROCESSING primary extraction collaborator: Google
// Document AI's layout parser, used in-memory against the uploaded bytes.
type Document interface {
	ProcessBytes(ctx context.Context, req DocAIProcessBytesRequest) (*DocAIResult, error)
	Close() error
}

type DocAIProcessBytesRequest struct {
	ProjectID   string
	Location    string
	ProcessorID string
	MimeType    string
	Data        []byte
}

// DocAIPage is one page's extracted plain text, with any tables rendered as
// trailing markdown so downstream chunking sees them as ordinary text.
type DocAIPage struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

type DocAIResult struct {
	Provider    string      `json:"provider"`
	Processor   string      `json:"processor"`
	MimeType    string      `json:"mime_type"`
	PrimaryText string      `json:"primary_text"`
	Pages       []DocAIPage `json:"pages,omitempty"`
}

type documentService struct {
	log       *logger.Logger
	docClient *documentai.DocumentProcessorClient
}

func NewDocument(log *logger.Logger) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Document")

	ctx := context.Background()
	location := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	if location == "" {
		location = "us"
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)

	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	slog.Info("Document AI initialized", "endpoint", endpoint)
	return &documentService{log: slog, docClient: c}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.docClient == nil {
		return nil
	}
	return s.docClient.Close()
}

func (s *documentService) ProcessBytes(ctx context.Context, req DocAIProcessBytesRequest) (*DocAIResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if len(req.Data) == 0 {
		return &DocAIResult{Provider: "gcp_documentai", MimeType: req.MimeType}, nil
	}
	if req.MimeType == "" {
		req.MimeType = "application/pdf"
	}

	name := processorName(req.ProjectID, req.Location, req.ProcessorID)
	if name == "" {
		return nil, fmt.Errorf("document ai processor not configured")
	}

	resp, err := s.docClient.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: req.Data, MimeType: req.MimeType},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return &DocAIResult{Provider: "gcp_documentai", Processor: name, MimeType: req.MimeType}, nil
	}
	return buildDocAIResult(resp.Document, name, req.MimeType), nil
}

func buildDocAIResult(doc *documentaipb.Document, processor, mimeType string) *DocAIResult {
	out := &DocAIResult{Provider: "gcp_documentai", Processor: processor, MimeType: mimeType}
	if doc == nil {
		return out
	}
	out.PrimaryText = strings.TrimSpace(doc.Text)

	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		var pageText strings.Builder
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil || para.Layout.TextAnchor == nil {
				continue
			}
			t := strings.TrimSpace(textFromAnchor(doc.Text, para.Layout.TextAnchor))
			if t == "" {
				continue
			}
			pageText.WriteString(t)
			pageText.WriteString("\n")
		}
		for _, table := range p.Tables {
			if md := strings.TrimSpace(tableToMarkdown(doc.Text, table)); md != "" {
				pageText.WriteString("\n")
				pageText.WriteString(md)
				pageText.WriteString("\n")
			}
		}
		out.Pages = append(out.Pages, DocAIPage{PageNumber: int(p.PageNumber), Text: strings.TrimSpace(pageText.String())})
	}

	if len(out.Pages) == 0 && out.PrimaryText != "" {
		out.Pages = []DocAIPage{{PageNumber: 1, Text: out.PrimaryText}}
	}
	return out
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func tableToMarkdown(full string, t *documentaipb.Document_Page_Table) string {
	if t == nil {
		return ""
	}
	var header []string
	bodyRows := append([]*documentaipb.Document_Page_Table_TableRow{}, t.BodyRows...)
	if len(t.HeaderRows) > 0 && t.HeaderRows[0] != nil {
		header = tableRowToCells(full, t.HeaderRows[0])
	} else if len(bodyRows) > 0 && bodyRows[0] != nil {
		header = tableRowToCells(full, bodyRows[0])
		bodyRows = bodyRows[1:]
	}
	if len(header) == 0 {
		return ""
	}

	rows := [][]string{header}
	for _, r := range bodyRows {
		if r != nil {
			rows = append(rows, tableRowToCells(full, r))
		}
	}
	maxCols := 0
	for _, r := range rows {
		if len(r) > maxCols {
			maxCols = len(r)
		}
	}
	if maxCols == 0 {
		return ""
	}
	for i := range rows {
		for len(rows[i]) < maxCols {
			rows[i] = append(rows[i], "")
		}
	}

	var out strings.Builder
	out.WriteString("| " + strings.Join(escapePipes(rows[0]), " | ") + " |\n")
	sep := make([]string, maxCols)
	for i := range sep {
		sep[i] = "---"
	}
	out.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for i := 1; i < len(rows); i++ {
		out.WriteString("| " + strings.Join(escapePipes(rows[i]), " | ") + " |\n")
	}
	return out.String()
}

func tableRowToCells(full string, r *documentaipb.Document_Page_Table_TableRow) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c == nil || c.Layout == nil || c.Layout.TextAnchor == nil {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(textFromAnchor(full, c.Layout.TextAnchor)))
	}
	return out
}

func escapePipes(row []string) []string {
	out := make([]string, len(row))
	for i, s := range row {
		out[i] = strings.ReplaceAll(s, "|", "\\|")
	}
	return out
}

func processorName(project, location, processorID string) string {
	project, location, processorID = strings.TrimSpace(project), strings.TrimSpace(location), strings.TrimSpace(processorID)
	if project == "" || location == "" || processorID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
}
