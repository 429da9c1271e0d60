package pipeline

import (
	"testing"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
)

func TestAccountant_ReportMapsLocalToGlobalBand(t *testing.T) {
	a := NewAccountant(jobdomain.DefaultStageWeights)

	global, advanced := a.Report(jobdomain.StageTransformation, 50)
	if !advanced {
		t.Fatalf("expected first report past hysteresis to advance")
	}
	want := 25 + (60-25)*50.0/100
	if global != want {
		t.Fatalf("global = %v, want %v", global, want)
	}
}

func TestAccountant_ReportNeverRegresses(t *testing.T) {
	a := NewAccountant(jobdomain.DefaultStageWeights)
	a.Report(jobdomain.StageTransformation, 100)
	high := a.LastGlobal()

	global, advanced := a.Report(jobdomain.StagePDFPreprocessing, 10)
	if global != high {
		t.Fatalf("global regressed: got %v, want %v", global, high)
	}
	if advanced {
		t.Fatalf("expected advanced=false when global does not move")
	}
}

func TestAccountant_UnknownStageLeavesGlobalUnchanged(t *testing.T) {
	a := NewAccountant(jobdomain.DefaultStageWeights)
	a.Report(jobdomain.StageInitialization, 100)
	before := a.LastGlobal()

	global, advanced := a.Report(jobdomain.StageID("NOT_A_STAGE"), 50)
	if global != before || advanced {
		t.Fatalf("unknown stage must not move global progress, got global=%v advanced=%v", global, advanced)
	}
}

func TestAccountant_ReportClampsOutOfRangeLocal(t *testing.T) {
	a := NewAccountant(jobdomain.DefaultStageWeights)
	a.Report(jobdomain.StageInitialization, -10)
	snap := a.Snapshot()
	if snap[jobdomain.StageInitialization] != 0 {
		t.Fatalf("expected negative local clamped to 0, got %v", snap[jobdomain.StageInitialization])
	}

	a.Report(jobdomain.StageInitialization, 200)
	snap = a.Snapshot()
	if snap[jobdomain.StageInitialization] != 100 {
		t.Fatalf("expected local clamped to 100, got %v", snap[jobdomain.StageInitialization])
	}
}

func TestValidateStageWeights_AcceptsDefault(t *testing.T) {
	if err := ValidateStageWeights(jobdomain.Stages, jobdomain.DefaultStageWeights); err != nil {
		t.Fatalf("expected default weights valid, got %v", err)
	}
}

func TestValidateStageWeights_RejectsGapBetweenStages(t *testing.T) {
	weights := map[jobdomain.StageID]jobdomain.StageWeight{
		jobdomain.StageInitialization:   {Start: 0, End: 10},
		jobdomain.StagePDFPreprocessing: {Start: 20, End: 100},
	}
	err := ValidateStageWeights([]jobdomain.StageID{jobdomain.StageInitialization, jobdomain.StagePDFPreprocessing}, weights)
	if err == nil {
		t.Fatalf("expected error for non-contiguous bands")
	}
}

func TestValidateStageWeights_RejectsMissingStage(t *testing.T) {
	weights := map[jobdomain.StageID]jobdomain.StageWeight{
		jobdomain.StageInitialization: {Start: 0, End: 100},
	}
	err := ValidateStageWeights(jobdomain.Stages, weights)
	if err == nil {
		t.Fatalf("expected error for missing stage weight")
	}
}

func TestThumbnailWeights_IsContiguousTwoStageBand(t *testing.T) {
	order := []jobdomain.StageID{jobdomain.StagePDFPreprocessing, jobdomain.StageImageProcessing}
	if err := ValidateStageWeights(order, ThumbnailWeights); err != nil {
		t.Fatalf("expected thumbnail weights valid, got %v", err)
	}
}
