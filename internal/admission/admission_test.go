package admission

import "testing"

func TestRequestValidate_RejectsEmptyBytes(t *testing.T) {
	r := Request{JobID: "job-1", Filename: "a.pdf"}
	if err := r.validate(); err == nil {
		t.Fatalf("expected error for empty file bytes")
	}
}

func TestRequestValidate_RejectsBadJobID(t *testing.T) {
	r := Request{JobID: "has a space", Filename: "a.pdf", Bytes: []byte("x")}
	if err := r.validate(); err == nil {
		t.Fatalf("expected error for invalid job_id")
	}
}

func TestRequestValidate_RejectsUnrecognizedExtension(t *testing.T) {
	r := Request{JobID: "job-1", Filename: "a.docx", Bytes: []byte("x")}
	if err := r.validate(); err == nil {
		t.Fatalf("expected error for unrecognized extension")
	}
}

func TestRequestValidate_AcceptsWellFormedRequest(t *testing.T) {
	r := Request{JobID: "job_123-ABC", Filename: "textbook.PDF", Bytes: []byte("%PDF-1.4")}
	if err := r.validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestCancelTable_PutGetRemove(t *testing.T) {
	tbl := newCancelTable()
	called := false
	tbl.put("job-1", func() { called = true })

	cancel, ok := tbl.get("job-1")
	if !ok {
		t.Fatalf("expected job-1 present after put")
	}
	cancel()
	if !called {
		t.Fatalf("expected stored cancel func to run")
	}

	tbl.remove("job-1")
	if _, ok := tbl.get("job-1"); ok {
		t.Fatalf("expected job-1 absent after remove")
	}
}

func TestCancelTable_GetMissingReturnsFalse(t *testing.T) {
	tbl := newCancelTable()
	if _, ok := tbl.get("nope"); ok {
		t.Fatalf("expected missing job to report ok=false")
	}
}
