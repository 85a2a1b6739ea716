package opslog

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAnalysisAppendsJSONLine(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer w.Close()

	w.WriteAnalysis(AnalysisRecord{TraceID: "t1", Key: "positioning_themes", ValidationStatus: "success"})
	w.WriteError(ErrorRecord{TraceID: "t1", Stage: "fetch", Message: "boom"})

	f, err := os.Open(filepath.Join(dir, "discovery_analysis.jsonl"))
	if err != nil {
		t.Fatalf("expected analysis log file to exist: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 1 {
		t.Fatalf("expected 1 line in analysis log, got %d", lines)
	}
}
