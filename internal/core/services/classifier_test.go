package services

import (
	"context"
	"testing"

	"github.com/veridian-labs/regcore/internal/core/domain"
	"github.com/veridian-labs/regcore/internal/core/ports/driven/mocks"
	"github.com/veridian-labs/regcore/internal/taxonomy"
)

func newTestClassifier() (*mocks.MockSchemaStore, *Classifier) {
	schemaStore := mocks.NewMockSchemaStore()
	_ = schemaStore.SeedElements(context.Background(), taxonomy.All())
	classifier := NewClassifier(DefaultClassifierConfig(), taxonomy.Version, taxonomy.All(), schemaStore)
	return schemaStore, classifier
}

func TestClassifier_Classify_EmissionsText(t *testing.T) {
	_, classifier := newTestClassifier()

	text := "The company reports gross Scope 1, Scope 2 and Scope 3 greenhouse gas emissions " +
		"in tonnes of CO2 equivalent, together with its climate transition plan."

	scores := classifier.Classify(text, domain.SchemaTypeEUESRS)
	if len(scores) == 0 {
		t.Fatal("expected at least one element score")
	}

	if scores[0].ElementCode != "ESRS-E1" && scores[0].ElementCode != "ESRS-E1-6" {
		t.Errorf("expected a climate element on top, got %s", scores[0].ElementCode)
	}

	for _, s := range scores {
		if s.Confidence < 0 || s.Confidence > 1 {
			t.Errorf("confidence out of range for %s: %f", s.ElementCode, s.Confidence)
		}
		if s.Confidence < classifier.config.MinConfidence {
			t.Errorf("score below persistence threshold leaked out: %s %f", s.ElementCode, s.Confidence)
		}
	}
}

func TestClassifier_Classify_Deterministic(t *testing.T) {
	_, classifier := newTestClassifier()

	text := "Board composition, diversity and oversight of sustainability matters including " +
		"workforce diversity targets and business conduct."

	first := classifier.Classify(text, domain.SchemaTypeEUESRS)
	for i := 0; i < 5; i++ {
		again := classifier.Classify(text, domain.SchemaTypeEUESRS)
		if len(again) != len(first) {
			t.Fatalf("run %d: got %d scores, want %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j].ElementCode != first[j].ElementCode || again[j].Confidence != first[j].Confidence {
				t.Fatalf("run %d: score %d differs: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestClassifier_Classify_DescendingOrder(t *testing.T) {
	_, classifier := newTestClassifier()

	scores := classifier.Classify(
		"Energy consumption, emissions reduction targets, water usage and workforce training.",
		domain.SchemaTypeEUESRS,
	)
	for i := 1; i < len(scores); i++ {
		if scores[i].Confidence > scores[i-1].Confidence {
			t.Errorf("scores not descending at %d: %f > %f", i, scores[i].Confidence, scores[i-1].Confidence)
		}
	}
}

func TestClassifier_Classify_UnrelatedText(t *testing.T) {
	_, classifier := newTestClassifier()

	scores := classifier.Classify("the quarterly meeting was rescheduled", domain.SchemaTypeEUESRS)
	if len(scores) != 0 {
		t.Errorf("expected no scores above threshold for unrelated text, got %d", len(scores))
	}
}

func TestClassifier_ApplyToTarget_SupersedesAutomaticOnly(t *testing.T) {
	schemaStore, classifier := newTestClassifier()
	ctx := context.Background()

	// A manual mapping exists before reclassification.
	manual, err := classifier.AddManualMapping(ctx, domain.MappingTargetChunk, "chunk-1", "ESRS-G1")
	if err != nil {
		t.Fatalf("AddManualMapping failed: %v", err)
	}
	if manual.MappingType != domain.MappingTypeManual || manual.Confidence != 1.0 {
		t.Fatalf("unexpected manual mapping: %+v", manual)
	}

	scores := []domain.ElementScore{{ElementCode: "ESRS-E1", Confidence: 0.8}}
	if err := classifier.ApplyToTarget(ctx, domain.MappingTargetChunk, "chunk-1", scores); err != nil {
		t.Fatalf("first ApplyToTarget failed: %v", err)
	}

	// Reclassify with different results.
	scores = []domain.ElementScore{{ElementCode: "ESRS-E5", Confidence: 0.6}}
	if err := classifier.ApplyToTarget(ctx, domain.MappingTargetChunk, "chunk-1", scores); err != nil {
		t.Fatalf("second ApplyToTarget failed: %v", err)
	}

	current, err := schemaStore.GetMappings(ctx, domain.MappingTargetChunk, "chunk-1")
	if err != nil {
		t.Fatalf("GetMappings failed: %v", err)
	}

	var haveManual, haveOld, haveNew bool
	for _, m := range current {
		switch {
		case m.MappingType == domain.MappingTypeManual && m.ElementCode == "ESRS-G1":
			haveManual = true
		case m.ElementCode == "ESRS-E1":
			haveOld = true
		case m.ElementCode == "ESRS-E5":
			haveNew = true
		}
	}
	if !haveManual {
		t.Error("manual mapping did not survive reclassification")
	}
	if haveOld {
		t.Error("superseded automatic mapping still current")
	}
	if !haveNew {
		t.Error("new automatic mapping missing")
	}
}

func TestClassifier_ApplyToTarget_RecordsTaxonomyVersion(t *testing.T) {
	schemaStore, classifier := newTestClassifier()
	ctx := context.Background()

	scores := []domain.ElementScore{{ElementCode: "ESRS-S1", Confidence: 0.5}}
	if err := classifier.ApplyToTarget(ctx, domain.MappingTargetRequirement, "req-1", scores); err != nil {
		t.Fatalf("ApplyToTarget failed: %v", err)
	}

	mappings, _ := schemaStore.GetMappings(ctx, domain.MappingTargetRequirement, "req-1")
	if len(mappings) != 1 {
		t.Fatalf("expected 1 mapping, got %d", len(mappings))
	}
	if mappings[0].TaxonomyVersion != taxonomy.Version {
		t.Errorf("taxonomy version = %q, want %q", mappings[0].TaxonomyVersion, taxonomy.Version)
	}
}

func TestClassifier_AddManualMapping_UnknownElement(t *testing.T) {
	_, classifier := newTestClassifier()

	_, err := classifier.AddManualMapping(context.Background(), domain.MappingTargetChunk, "chunk-1", "NOT-AN-ELEMENT")
	if err == nil {
		t.Fatal("expected error for unknown element code")
	}
}
