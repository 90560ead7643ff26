package retrieval

import (
	"math"
	"reflect"
	"testing"
)

var seedCorpus = []string{
	"1번 사출기 오늘 생산량",
	"불량율 불량 건수 기포 수축",
	"injection_cycle machine_id cycle_date production_qty defect_qty",
	"주간 야간 교대 생산 실적",
}

func TestTransformDeterministic(t *testing.T) {
	vectorizer := NewVectorizer(seedCorpus)
	a := vectorizer.Transform("1번 사출기 불량율")
	b := vectorizer.Transform("1번 사출기 불량율")
	if !reflect.DeepEqual(a, b) {
		t.Error("transform is not deterministic for identical input")
	}
}

func TestTransformNormalized(t *testing.T) {
	vectorizer := NewVectorizer(seedCorpus)
	vec := vectorizer.Transform("오늘 생산량은?")
	if len(vec) == 0 {
		t.Fatal("expected non-empty vector")
	}
	norm := 0.0
	for _, w := range vec {
		norm += w * w
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("vector norm^2 = %f, want 1", norm)
	}
}

func TestTransformOutOfVocabulary(t *testing.T) {
	vectorizer := NewVectorizer(seedCorpus)
	if vec := vectorizer.Transform("zzzz"); len(vec) != 0 {
		t.Errorf("expected empty vector for out-of-vocabulary text, got %v", vec)
	}
}

func TestQueryRanking(t *testing.T) {
	vectorizer := NewVectorizer(seedCorpus)
	index := BuildIndex(vectorizer, SourceSchema, []Item{
		{Text: "injection_cycle machine_id production_qty", Payload: "injection_cycle"},
		{Text: "주간 야간 교대 실적", Payload: "shift_record"},
		{Text: "불량율 불량 건수", Payload: "defect_summary"},
	})

	hints := index.Query("불량율 알려줘", 2)
	if len(hints) == 0 {
		t.Fatal("expected hints")
	}
	if len(hints) > 2 {
		t.Fatalf("k not honored: got %d hints", len(hints))
	}
	if hints[0].Payload != "defect_summary" {
		t.Errorf("best hint: got %v", hints[0].Payload)
	}
	for i := 1; i < len(hints); i++ {
		if hints[i].Similarity > hints[i-1].Similarity {
			t.Error("hints not sorted descending")
		}
	}
	for _, hint := range hints {
		if hint.Similarity < 0 || hint.Similarity > 1 {
			t.Errorf("similarity out of range: %f", hint.Similarity)
		}
		if hint.Source != SourceSchema {
			t.Errorf("source: got %s", hint.Source)
		}
	}
}

func TestQueryDegradesToNoHints(t *testing.T) {
	vectorizer := NewVectorizer(seedCorpus)
	index := BuildIndex(vectorizer, SourceConversation, []Item{{Text: "1번 사출기 생산량"}})

	if hints := index.Query("zzzz", 3); hints != nil {
		t.Errorf("out-of-vocabulary query should yield no hints, got %v", hints)
	}
	var nilIndex *Index
	if hints := nilIndex.Query("불량율", 3); hints != nil {
		t.Errorf("nil index should yield no hints, got %v", hints)
	}
}
