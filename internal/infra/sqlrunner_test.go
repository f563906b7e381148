package infra

import (
	"testing"

	"editserver/internal/sqlinline"
)

func TestExtractMarker(t *testing.T) {
	marker, trimmed, err := extractMarker("--sql 71260f07-7f70-4e7a-b16b-601ff467a3e6\nSELECT 1")
	if err != nil {
		t.Fatalf("extractMarker() error = %v", err)
	}
	if marker != "71260f07-7f70-4e7a-b16b-601ff467a3e6" {
		t.Fatalf("marker = %q", marker)
	}
	if trimmed != "SELECT 1" {
		t.Fatalf("trimmed = %q", trimmed)
	}
}

func TestExtractMarkerRejectsUnmarkedQueries(t *testing.T) {
	if _, _, err := extractMarker("SELECT 1"); err == nil {
		t.Fatal("unmarked query accepted")
	}
	if _, _, err := extractMarker("--sql not-a-uuid\nSELECT 1"); err == nil {
		t.Fatal("invalid marker accepted")
	}
	if _, _, err := extractMarker(""); err == nil {
		t.Fatal("empty query accepted")
	}
}

func TestInlineQueriesCarryMarkers(t *testing.T) {
	queries := []string{
		sqlinline.QInsertEdit,
		sqlinline.QGetEditByID,
		sqlinline.QGetEditByUUID,
		sqlinline.QUpdateEditStatus,
		sqlinline.QUpdateEditStage,
		sqlinline.QUpdateEditStatusAndStage,
		sqlinline.QUpdateEditEnhancedPrompt,
		sqlinline.QCompleteEditWithResult,
		sqlinline.QInsertChainLink,
		sqlinline.QGetChainPosition,
		sqlinline.QChainHistory,
		sqlinline.QInsertFeedback,
		sqlinline.QGetFeedback,
	}
	seen := map[string]bool{}
	for _, q := range queries {
		marker, _, err := extractMarker(q)
		if err != nil {
			t.Fatalf("query without valid marker:\n%s", q)
		}
		if seen[marker] {
			t.Fatalf("duplicate sql marker %s", marker)
		}
		seen[marker] = true
	}
}
