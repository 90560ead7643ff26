package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/prodtalk/prodtalk/ai/extract"
	"github.com/prodtalk/prodtalk/store/proddb"
)

type fakeGateway struct {
	answer string
	calls  int
	gotTbl string
}

func (g *fakeGateway) GenerateAnswer(ctx context.Context, question, resultTable string) (string, error) {
	g.calls++
	g.gotTbl = resultTable
	return g.answer, nil
}

func TestSynthesizeRate(t *testing.T) {
	gw := &fakeGateway{}
	result := &proddb.Result{
		Columns: []string{"defect_count", "total"},
		Rows:    []map[string]any{{"defect_count": int64(12), "total": int64(300)}},
	}

	answer, err := New(gw).Synthesize(context.Background(), "오늘 불량율은?", result, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer, "4.00%") {
		t.Errorf("expected 4.00%% in answer, got %q", answer)
	}
	if gw.calls != 0 {
		t.Error("deterministic rate path must not call the gateway")
	}
}

func TestSynthesizeRatePrecomputed(t *testing.T) {
	result := &proddb.Result{
		Columns: []string{"defect_rate"},
		Rows:    []map[string]any{{"defect_rate": 2.5}},
	}
	answer, err := New(&fakeGateway{}).Synthesize(context.Background(), "불량률 알려줘", result, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer, "2.50%") {
		t.Errorf("got %q", answer)
	}
}

func TestSynthesizeComparisonAliases(t *testing.T) {
	result := &proddb.Result{
		Columns: []string{"period_a_defects", "period_a_total", "period_b_defects", "period_b_total"},
		Rows: []map[string]any{{
			"period_a_defects": int64(10), "period_a_total": int64(500),
			"period_b_defects": int64(30), "period_b_total": int64(600),
		}},
	}

	answer, err := New(&fakeGateway{}).Synthesize(context.Background(), "지난주와 이번주 불량율 비교해줘", result, nil)
	if err != nil {
		t.Fatal(err)
	}
	// 10/500 = 2.00%, 30/600 = 5.00%, delta +3.00%p
	for _, want := range []string{"2.00%", "5.00%", "3.00%p", "증가"} {
		if !strings.Contains(answer, want) {
			t.Errorf("expected %q in answer, got %q", want, answer)
		}
	}
}

func TestSynthesizeComparisonTwoRows(t *testing.T) {
	result := &proddb.Result{
		Columns: []string{"defect_count", "total"},
		Rows: []map[string]any{
			{"defect_count": int64(20), "total": int64(400)}, // 5.00%
			{"defect_count": int64(8), "total": int64(400)},  // 2.00%
		},
	}
	answer, err := New(&fakeGateway{}).Synthesize(context.Background(), "어제와 오늘 차이는?", result, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"5.00%", "2.00%", "감소"} {
		if !strings.Contains(answer, want) {
			t.Errorf("expected %q in answer, got %q", want, answer)
		}
	}
}

func TestSynthesizeCountThousands(t *testing.T) {
	result := &proddb.Result{
		Columns: []string{"total_cycles"},
		Rows:    []map[string]any{{"total_cycles": int64(15280)}},
	}
	answer, err := New(&fakeGateway{}).Synthesize(context.Background(), "오늘 생산량은?", result, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer, "15,280") {
		t.Errorf("expected thousands separator, got %q", answer)
	}
}

func TestSynthesizeCause(t *testing.T) {
	result := &proddb.Result{
		Columns: []string{"defect_description", "count"},
		Rows: []map[string]any{
			{"defect_description": "Flash (플래시)", "count": int64(5)},
			{"defect_description": "Void (기포)", "count": int64(3)},
		},
	}
	answer, err := New(&fakeGateway{}).Synthesize(context.Background(), "어제 불량 원인은?", result, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Flash (플래시) 5건", "Void (기포) 3건"} {
		if !strings.Contains(answer, want) {
			t.Errorf("expected %q in answer, got %q", want, answer)
		}
	}
}

func TestSynthesizeFallbackToGateway(t *testing.T) {
	gw := &fakeGateway{answer: "평균 무게는 252.3g입니다."}
	result := &proddb.Result{
		Columns: []string{"avg_weight"},
		Rows:    []map[string]any{{"avg_weight": 252.3}},
	}

	answer, err := New(gw).Synthesize(context.Background(), "지난주 제품 무게 평균은?", result, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gw.calls != 1 {
		t.Fatalf("gateway calls: got %d, want 1", gw.calls)
	}
	if answer != gw.answer {
		t.Errorf("got %q", answer)
	}
	if !strings.Contains(gw.gotTbl, "avg_weight") {
		t.Errorf("result table missing columns: %q", gw.gotTbl)
	}
}

func TestRepairPlaceholders(t *testing.T) {
	result := &proddb.Result{
		Columns: []string{"avg_weight"},
		Rows:    []map[string]any{{"avg_weight": 252.3}},
	}
	got := RepairPlaceholders("평균 무게는 [평균값]g입니다.", result, nil)
	if strings.Contains(got, "[") {
		t.Errorf("placeholder left in answer: %q", got)
	}
	if !strings.Contains(got, "252") {
		t.Errorf("expected numeric fill, got %q", got)
	}

	// No numeric source at all: the placeholder is removed, never shown.
	got = RepairPlaceholders("값은 [값]입니다.", nil, extract.Entities{"shift": {"DAY"}})
	if strings.Contains(got, "[") {
		t.Errorf("placeholder left in answer: %q", got)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{12, "12"},
		{2.5, "2.50"},
		{15280, "15,280"},
		{1234567.891, "1,234,567.89"},
		// Fractions that round up must carry into the integer digits.
		{4.999, "5"},
		{999.999, "1,000"},
		{-4.999, "-5"},
		{-1234.5, "-1,234.50"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatResultTableCapsRows(t *testing.T) {
	rows := make([]map[string]any, 12)
	for i := range rows {
		rows[i] = map[string]any{"n": int64(i)}
	}
	table := FormatResultTable(&proddb.Result{Columns: []string{"n"}, Rows: rows})
	if !strings.Contains(table, "외 2개 행") {
		t.Errorf("expected overflow note, got %q", table)
	}
}
