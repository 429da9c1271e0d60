package pipeline

import (
	"time"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
)

// State is the mutable working state threaded through the linear stage
// composition: each stage reads what previous stages produced and appends
// its own output. Stage workers receive it through the Stage Worker
// Contract's immutable-input convention: a stage may only read fields
// populated by earlier stages and may only write its own named field.
type State struct {
	JobID          string
	Filename       string
	InputBytes     []byte
	TextbookID     string
	EnablePhonemes bool

	MaxConcurrentTransform int
	MaxConcurrentImage     int
	MaxConcurrentEnrich    int
	MaxTokensPerChunk      int

	// VocabularyAudio maps a selected difficult word (lowercased, as
	// produced by selectDifficultWords) to base64-encoded pronunciation
	// audio supplied out-of-band in the admission payload under
	// "vocabulary_audio_b64". ENRICHMENT validates pronunciation timing via
	// Speech-to-Text only for words present in this map; every other
	// selected word falls back to the heuristic syllable estimate.
	VocabularyAudio         map[string]string
	VocabularyAudioMimeType string

	Chunks []jobdomain.Chunk

	// PageBlocks[i] holds the typed blocks produced by TRANSFORMATION for
	// Chunks[i], indexed identically so page order tracks chunk order.
	PageBlocks [][]jobdomain.Block

	Document *jobdomain.Document

	ArtifactURL string

	PartialFailures []PartialFailure

	StartedAt time.Time
}

// AddPartialFailure merges a tolerated partial failure into the running
// list, coalescing by stage so a chunk-by-chunk failure count stays a single
// entry per stage rather than one entry per occurrence.
func (s *State) AddPartialFailure(stage jobdomain.StageID, note string) {
	for i := range s.PartialFailures {
		if s.PartialFailures[i].Stage == stage {
			s.PartialFailures[i].Count++
			return
		}
	}
	s.PartialFailures = append(s.PartialFailures, PartialFailure{Stage: stage, Count: 1, Note: note})
}
