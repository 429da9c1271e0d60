package jobdomain

import "testing"

func TestJobStatus_Terminal(t *testing.T) {
	cases := map[JobStatus]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestStages_MatchesDefaultStageWeightsKeys(t *testing.T) {
	if len(Stages) != len(DefaultStageWeights) {
		t.Fatalf("Stages has %d entries, DefaultStageWeights has %d", len(Stages), len(DefaultStageWeights))
	}
	for _, s := range Stages {
		if _, ok := DefaultStageWeights[s]; !ok {
			t.Errorf("stage %s missing from DefaultStageWeights", s)
		}
	}
}

func TestDefaultStageWeights_ContiguousAndPartitions(t *testing.T) {
	last := 0.0
	for _, s := range Stages {
		w := DefaultStageWeights[s]
		if w.Start != last {
			t.Errorf("stage %s starts at %v, want %v", s, w.Start, last)
		}
		if w.End < w.Start {
			t.Errorf("stage %s has End < Start", s)
		}
		last = w.End
	}
	if last != 100 {
		t.Errorf("final stage ends at %v, want 100", last)
	}
}
