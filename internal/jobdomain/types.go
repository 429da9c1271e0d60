// Package jobdomain holds the plain data types shared by every component of
// the job orchestration and pipeline engine: identifiers, status/stage enums,
// progress and result snapshots, and the block/document shapes produced by
// the pipeline. Nothing in this package performs I/O.
package jobdomain

import "time"

// JobStatus is the sum type driving the pipeline state machine.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusCancelled  JobStatus = "CANCELLED"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// StageID enumerates the ordered pipeline stages. Enrichment subsumes
// phoneme/vocabulary analysis.
type StageID string

const (
	StageInitialization   StageID = "INITIALIZATION"
	StagePDFPreprocessing StageID = "PDF_PREPROCESSING"
	StageTransformation   StageID = "TRANSFORMATION"
	StageImageProcessing  StageID = "IMAGE_PROCESSING"
	StageEnrichment       StageID = "ENRICHMENT"
	StageFinalAssembly    StageID = "FINAL_ASSEMBLY"
	StageStorage          StageID = "STORAGE"
	StageNotification     StageID = "NOTIFICATION"
)

// Stages is the canonical, ordered stage list driving the Pipeline Runner.
var Stages = []StageID{
	StageInitialization,
	StagePDFPreprocessing,
	StageTransformation,
	StageImageProcessing,
	StageEnrichment,
	StageFinalAssembly,
	StageStorage,
	StageNotification,
}

// StageWeight is the fixed global {start%, end%} band for a stage. The bands
// are contiguous and partition [0,100].
type StageWeight struct {
	Start float64
	End   float64
}

// DefaultStageWeights is the default partition. Implementations may
// tune these but must preserve contiguity and total coverage; see
// pipeline.ValidateStageWeights.
var DefaultStageWeights = map[StageID]StageWeight{
	StageInitialization:   {Start: 0, End: 5},
	StagePDFPreprocessing: {Start: 5, End: 25},
	StageTransformation:   {Start: 25, End: 60},
	StageImageProcessing:  {Start: 60, End: 80},
	StageEnrichment:       {Start: 80, End: 90},
	StageFinalAssembly:    {Start: 90, End: 95},
	StageStorage:          {Start: 95, End: 99},
	StageNotification:     {Start: 99, End: 100},
}

// JobProgress is the durable, overwrite-with-latest snapshot written to the
// Job Registry and mirrored onto the progress-channel.
type JobProgress struct {
	JobID                string             `json:"job_id"`
	Status               JobStatus          `json:"status"`
	CurrentStage         StageID            `json:"current_stage"`
	GlobalProgress       float64            `json:"global_progress"`
	PerStageProgress     map[StageID]float64 `json:"per_stage_progress"`
	StartedAt            time.Time          `json:"started_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	Error                string             `json:"error,omitempty"`
	EstimatedCompletion  *time.Time         `json:"estimated_completion_at,omitempty"`
}

// JobResult is written exactly once, on successful terminal transition.
type JobResult struct {
	JobID           string         `json:"job_id"`
	Filename        string         `json:"filename"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	ProcessingTimeS float64        `json:"processing_time_s"`
	ArtifactURL     string         `json:"artifact_url"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// BlockType enumerates the typed structural elements of the output document.
type BlockType string

const (
	BlockText      BlockType = "TEXT"
	BlockHeading   BlockType = "HEADING"
	BlockList      BlockType = "LIST"
	BlockTable     BlockType = "TABLE"
	BlockPageImage BlockType = "PAGE_IMAGE"
)

// Block is one typed structural element within a page.
type Block struct {
	ID               string         `json:"block_id"`
	Type             BlockType      `json:"type"`
	Content          string         `json:"content,omitempty"`
	ImagePrompt      string         `json:"image_prompt,omitempty"`
	URL              string         `json:"url,omitempty"`
	VocabularyItems  []VocabularyItem `json:"vocabulary_items,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// VocabularyItem is a difficult word identified during ENRICHMENT, optionally
// carrying phoneme/pronunciation data.
type VocabularyItem struct {
	Word     string `json:"word"`
	Phonemes string `json:"phonemes,omitempty"`
}

// Page is the assembled-document unit; ordering must equal chunk input order.
type Page struct {
	PageNumber      int     `json:"page_number"`
	OriginalContent string  `json:"original_content"`
	Blocks          []Block `json:"blocks"`
}

// Document is the FINAL_ASSEMBLY output, uploaded verbatim as the artifact.
type Document struct {
	JobID           string         `json:"job_id"`
	Filename        string         `json:"filename"`
	Status          JobStatus      `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	ProcessingTimeS float64        `json:"processing_time_s"`
	Metadata        map[string]any `json:"metadata"`
	Pages           []Page         `json:"pages"`
}

// Chunk is a contiguous block of input text sized to fit a token budget; the
// unit of TRANSFORMATION parallelism.
type Chunk struct {
	Index           int    `json:"index"`
	PageNumber      int    `json:"page_number"`
	Text            string `json:"text"`
	OriginalContent string `json:"original_content"`
	TokenCount      int    `json:"token_count"`
}

// ProgressMessage, ResultMessage and FailureMessage are the bus envelope
// shapes for the three fixed channels.
type ProgressMessage struct {
	JobID     string    `json:"jobId"`
	Progress  float64   `json:"progress"`
	Stage     string    `json:"step,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ResultMessage struct {
	JobID     string    `json:"jobId"`
	URL       string    `json:"s3_url"`
	Timestamp time.Time `json:"timestamp"`
}

type FailureMessage struct {
	JobID string `json:"jobId"`
	Error string `json:"error"`
}
