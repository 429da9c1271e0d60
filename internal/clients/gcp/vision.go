package gcp

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/neurobridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// Vision is the PDF_PREPROCESSING OCR fallback collaborator, invoked once over
// the whole document's bytes when Document AI errors or yields a weak text
// signal.
type Vision interface {
	OCRImageBytes(ctx context.Context, img []byte, mimeType string) (*VisionOCRResult, error)
	Close() error
}

type VisionOCRResult struct {
	Provider    string `json:"provider"`
	MimeType    string `json:"mime_type,omitempty"`
	PrimaryText string `json:"primary_text"`
}

type visionService struct {
	log          *logger.Logger
	visionClient *vision.ImageAnnotatorClient
}

func NewVision(log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Vision")

	ctx := context.Background()
	c, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionService{log: slog, visionClient: c}, nil
}

func (s *visionService) Close() error {
	if s == nil || s.visionClient == nil {
		return nil
	}
	return s.visionClient.Close()
}

func (s *visionService) OCRImageBytes(ctx context.Context, img []byte, mimeType string) (*VisionOCRResult, error) {
	if len(img) == 0 {
		return &VisionOCRResult{Provider: "gcp_vision", MimeType: mimeType}, nil
	}

	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.AnnotateImageRequest{
		Image:    &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
	}
	resp, err := s.visionClient.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &VisionOCRResult{Provider: "gcp_vision", MimeType: mimeType}, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	fta := r0.FullTextAnnotation
	if fta == nil {
		return &VisionOCRResult{Provider: "gcp_vision", MimeType: mimeType}, nil
	}
	return &VisionOCRResult{
		Provider:    "gcp_vision",
		MimeType:    mimeType,
		PrimaryText: collapseWhitespace(fta.Text),
	}, nil
}
