package pipeline

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/yungbote/neurobridge-backend/internal/clients/gcp"
	"github.com/yungbote/neurobridge-backend/internal/executor"
	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

const defaultMaxConcurrentEnrich = 4
const difficultWordMinLen = 8

// EnrichmentWorker implements ENRICHMENT: a heuristic difficult-word
// selector over every TEXT block, optionally followed by a recognition pass
// through Cloud Speech-to-Text to validate pronunciation timing. The
// recognition pass only runs for vocabulary words whose
// pronunciation audio was supplied out-of-band in the job payload (keyed
// "vocabulary_audio_b64"): this pipeline has no text-to-speech synthesis
// leg of its own, so it cannot manufacture that audio itself, only validate
// audio a caller already has. Enrichment is a no-op (report 0→100
// immediately) when disabled per job flags.
type EnrichmentWorker struct {
	log    *logger.Logger
	speech gcp.Speech
}

func NewEnrichmentWorker(log *logger.Logger, speech gcp.Speech) *EnrichmentWorker {
	return &EnrichmentWorker{log: log.With("component", "Enrichment"), speech: speech}
}

func (w *EnrichmentWorker) Stage() jobdomain.StageID { return jobdomain.StageEnrichment }

func (w *EnrichmentWorker) Run(ctx context.Context, st *State, report func(float64)) error {
	if !st.EnablePhonemes {
		report(100)
		return nil
	}

	type target struct {
		chunkIdx, blockIdx, wordIdx int
		word                        string
	}
	var targets []target
	for ci, blocks := range st.PageBlocks {
		for bi, b := range blocks {
			if b.Type != jobdomain.BlockText {
				continue
			}
			words := selectDifficultWords(b.Content)
			for wi, word := range words {
				st.PageBlocks[ci][bi].VocabularyItems = append(st.PageBlocks[ci][bi].VocabularyItems, jobdomain.VocabularyItem{Word: word})
				targets = append(targets, target{chunkIdx: ci, blockIdx: bi, wordIdx: wi, word: word})
			}
		}
	}
	if len(targets) == 0 {
		report(100)
		return nil
	}

	limit := st.MaxConcurrentEnrich
	if limit <= 0 {
		limit = defaultMaxConcurrentEnrich
	}
	ex := executor.New(w.log, limit)

	mimeType := st.VocabularyAudioMimeType
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	var completed int64
	_, errs := executor.RunTolerant(ctx, ex, len(targets), func(ctx context.Context, i int) (struct{}, error) {
		t := targets[i]
		audioB64 := st.VocabularyAudio[t.word]
		phonemes, err := w.phonemesFor(ctx, t.word, audioB64, mimeType)
		if err != nil {
			phonemes = heuristicPhonemes(t.word)
		}
		if phonemes != "" {
			st.PageBlocks[t.chunkIdx][t.blockIdx].VocabularyItems[t.wordIdx].Phonemes = phonemes
		}
		done := atomic.AddInt64(&completed, 1)
		report(float64(done) / float64(len(targets)) * 100)
		return struct{}{}, err
	})
	for i, err := range errs {
		if err != nil {
			w.log.Warn("phoneme validation failed for word, leaving heuristic estimate", "word", targets[i].word, "error", err)
			st.AddPartialFailure(w.Stage(), "phoneme validation failure")
		}
	}
	return nil
}

// phonemesFor validates pronunciation timing via Speech-to-Text when
// out-of-band audio was supplied for this word (payload key
// "vocabulary_audio_b64"); otherwise it falls back to a coarse
// syllable-count heuristic so every selected word still gets a
// best-effort phoneme hint.
func (w *EnrichmentWorker) phonemesFor(ctx context.Context, word, audioB64, mimeType string) (string, error) {
	if w.speech == nil || audioB64 == "" {
		return heuristicPhonemes(word), nil
	}
	return w.validateWithAudio(ctx, word, audioB64, mimeType)
}

// validateWithAudio is exercised when a caller supplies base64-encoded
// pronunciation audio for a word; it recognizes the audio and returns the
// recognized word-timing span as a phoneme/timing summary string.
func (w *EnrichmentWorker) validateWithAudio(ctx context.Context, word, audioB64, mimeType string) (string, error) {
	audio, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return "", err
	}
	res, err := w.speech.TranscribeAudioBytes(ctx, audio, mimeType, "en-US")
	if err != nil {
		return "", err
	}
	for _, wd := range res.Words {
		if strings.EqualFold(wd.Word, word) {
			return strconv.FormatFloat(wd.StartSec, 'f', 3, 64) + "-" + strconv.FormatFloat(wd.EndSec, 'f', 3, 64) + "s", nil
		}
	}
	return heuristicPhonemes(word), nil
}

var commonShortWords = map[string]bool{
	"because": true, "through": true, "another": true, "different": true,
}

// selectDifficultWords returns distinct words at least difficultWordMinLen
// runes long, excluding a small stoplist of common long words, in first-seen
// order.
func selectDifficultWords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, raw := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) && r != '\'' }) {
		w := strings.ToLower(raw)
		if len([]rune(w)) < difficultWordMinLen {
			continue
		}
		if commonShortWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// heuristicPhonemes returns a coarse syllable-count estimate formatted as
// "~Nsyl", used whenever no validated pronunciation audio is available.
func heuristicPhonemes(word string) string {
	vowels := "aeiouy"
	count := 0
	prevVowel := false
	for _, r := range strings.ToLower(word) {
		isVowel := strings.ContainsRune(vowels, r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}
	if count == 0 {
		count = 1
	}
	return "~" + strconv.Itoa(count) + "syl"
}
