package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/neurobridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// Speech is the ENRICHMENT stage's phoneme/pronunciation-timing collaborator:
// caller-supplied pronunciation audio for a vocabulary word is transcribed
// and its per-word timing is used to validate/derive phoneme timing.
type Speech interface {
	TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, languageCode string) (*SpeechResult, error)
	Close() error
}

type SpeechWord struct {
	Word       string  `json:"word"`
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
	Confidence float64 `json:"confidence"`
}

type SpeechResult struct {
	Provider    string       `json:"provider"`
	PrimaryText string       `json:"primary_text"`
	Words       []SpeechWord `json:"words,omitempty"`
}

type speechService struct {
	log        *logger.Logger
	client     *speech.Client
	maxRetries int
}

func NewSpeech(log *logger.Logger) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Speech")

	ctx := context.Background()
	c, err := speech.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &speechService{log: slog, client: c, maxRetries: 4}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, languageCode string) (*SpeechResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if len(audio) == 0 {
		return &SpeechResult{Provider: "gcp_speech"}, nil
	}
	if languageCode == "" {
		languageCode = "en-US"
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               languageCode,
			Encoding:                   inferSpeechEncoding(mimeType),
			EnableWordTimeOffsets:      true,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}

	resp, err := s.retry(ctx, func() (*speechpb.RecognizeResponse, error) {
		return s.client.Recognize(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("speech recognize: %w", err)
	}
	return parseSpeechResponse(resp), nil
}

func inferSpeechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	switch {
	case strings.Contains(mimeType, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(mimeType, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(mimeType, "mp3"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(mimeType, "ogg") || strings.Contains(mimeType, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func parseSpeechResponse(resp *speechpb.RecognizeResponse) *SpeechResult {
	out := &SpeechResult{Provider: "gcp_speech"}
	if resp == nil {
		return out
	}
	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			if full.Len() > 0 {
				full.WriteString(" ")
			}
			full.WriteString(t)
		}
		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			out.Words = append(out.Words, SpeechWord{
				Word:       w.Word,
				StartSec:   durToSec(w.StartTime),
				EndSec:     durToSec(w.EndTime),
				Confidence: float64(alt.Confidence),
			})
		}
	}
	out.PrimaryText = strings.TrimSpace(full.String())
	return out
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

func (s *speechService) retry(ctx context.Context, fn func() (*speechpb.RecognizeResponse, error)) (*speechpb.RecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err
		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}
