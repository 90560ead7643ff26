// Package answer turns tabular query results into natural-language
// answers. Known metric shapes (rate, comparison, count, cause) are
// computed deterministically from the result columns so the numbers never
// depend on a language model; everything else falls back to the gateway.
package answer

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/prodtalk/prodtalk/ai/extract"
	"github.com/prodtalk/prodtalk/store/proddb"
)

// Gateway is the generation surface the fallback path needs.
type Gateway interface {
	GenerateAnswer(ctx context.Context, question, resultTable string) (string, error)
}

// Synthesizer dispatches on the detected metric shape of the question.
type Synthesizer struct {
	gateway Gateway
}

func New(gateway Gateway) *Synthesizer {
	return &Synthesizer{gateway: gateway}
}

var (
	rateMarkers       = []string{"불량율", "불량률", "rate"}
	comparisonMarkers = []string{"비교", "차이", "더 많"}
	countMarkers      = []string{"생산량", "건수", "개수", "몇", "count"}
	causeMarkers      = []string{"원인", "유형별"}

	placeholderRegex = regexp.MustCompile(`\[[^\[\]]*\]`)
)

// Synthesize produces the final answer text for one turn.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, result *proddb.Result, entities extract.Entities) (string, error) {
	if result.RowCount() == 0 {
		return s.fallback(ctx, question, result, entities)
	}

	normalized := strings.ToLower(question)

	if containsAny(normalized, comparisonMarkers) {
		if answer, ok := comparisonAnswer(result); ok {
			return answer, nil
		}
	}
	if containsAny(normalized, rateMarkers) {
		if answer, ok := rateAnswer(result); ok {
			return answer, nil
		}
	}
	if containsAny(normalized, causeMarkers) {
		if answer, ok := causeAnswer(result); ok {
			return answer, nil
		}
	}
	if containsAny(normalized, countMarkers) {
		if answer, ok := countAnswer(result); ok {
			return answer, nil
		}
	}

	return s.fallback(ctx, question, result, entities)
}

// rateAnswer computes defects/production*100 directly from the result
// columns, bypassing the model for numeric accuracy.
func rateAnswer(result *proddb.Result) (string, bool) {
	row := result.Rows[0]

	defectCol := findColumn(result.Columns, "defect_count", "defects", "defect_cycles", "불량")
	totalCol := findColumn(result.Columns, "total", "total_cycles", "production_qty", "count")
	if defectCol != "" && totalCol != "" && defectCol != totalCol {
		defects, okD := toFloat(row[defectCol])
		total, okT := toFloat(row[totalCol])
		if okD && okT && total > 0 {
			rate := defects / total * 100
			return fmt.Sprintf("불량율은 %.2f%% (%s건 중 %s건)입니다.",
				rate, formatNumber(total), formatNumber(defects)), true
		}
	}

	// Pre-computed rate column from the generated SQL.
	if rateCol := findColumn(result.Columns, "defect_rate", "rate"); rateCol != "" {
		if rate, ok := toFloat(row[rateCol]); ok {
			return fmt.Sprintf("불량율은 %.2f%%입니다.", rate), true
		}
	}
	return "", false
}

// comparisonAnswer handles two-period results. The SQL generator emits the
// contractual period_a_* / period_b_* aliases; two plain rate rows are
// accepted as the fallback shape.
func comparisonAnswer(result *proddb.Result) (string, bool) {
	row := result.Rows[0]

	aDefects, okAD := toFloat(row[findColumn(result.Columns, "period_a_defects", "period_a_defect_count")])
	aTotal, okAT := toFloat(row[findColumn(result.Columns, "period_a_total", "period_a_total_cycles")])
	bDefects, okBD := toFloat(row[findColumn(result.Columns, "period_b_defects", "period_b_defect_count")])
	bTotal, okBT := toFloat(row[findColumn(result.Columns, "period_b_total", "period_b_total_cycles")])
	if okAD && okAT && okBD && okBT && aTotal > 0 && bTotal > 0 {
		return formatComparison(aDefects/aTotal*100, bDefects/bTotal*100), true
	}

	// Two rate rows, one per period, in result order.
	if result.RowCount() == 2 {
		defectCol := findColumn(result.Columns, "defect_count", "defects", "defect_cycles")
		totalCol := findColumn(result.Columns, "total", "total_cycles", "count")
		if defectCol != "" && totalCol != "" && defectCol != totalCol {
			firstDefects, ok1 := toFloat(result.Rows[0][defectCol])
			firstTotal, ok2 := toFloat(result.Rows[0][totalCol])
			secondDefects, ok3 := toFloat(result.Rows[1][defectCol])
			secondTotal, ok4 := toFloat(result.Rows[1][totalCol])
			if ok1 && ok2 && ok3 && ok4 && firstTotal > 0 && secondTotal > 0 {
				return formatComparison(firstDefects/firstTotal*100, secondDefects/secondTotal*100), true
			}
		}
	}
	return "", false
}

func formatComparison(rateA, rateB float64) string {
	delta := rateB - rateA
	direction := "증가"
	if delta < 0 {
		direction = "감소"
	}
	return fmt.Sprintf("첫 번째 기간 불량율은 %.2f%%, 두 번째 기간 불량율은 %.2f%%로 %.2f%%p %s했습니다.",
		rateA, rateB, math.Abs(delta), direction)
}

// countAnswer formats the first numeric column of the first row with
// thousands separators.
func countAnswer(result *proddb.Result) (string, bool) {
	row := result.Rows[0]
	for _, col := range result.Columns {
		if value, ok := toFloat(row[col]); ok {
			return fmt.Sprintf("조회 결과는 %s건입니다.", formatNumber(value)), true
		}
	}
	return "", false
}

// causeAnswer enumerates distinct categorical values with per-category
// counts when present.
func causeAnswer(result *proddb.Result) (string, bool) {
	labelCol := ""
	for _, col := range result.Columns {
		if _, numeric := toFloat(result.Rows[0][col]); !numeric {
			labelCol = col
			break
		}
	}
	if labelCol == "" {
		return "", false
	}
	countCol := findColumn(result.Columns, "count", "cnt", "defect_count", "건수")

	var parts []string
	for _, row := range result.Rows {
		label := fmt.Sprintf("%v", row[labelCol])
		if countCol != "" {
			if count, ok := toFloat(row[countCol]); ok {
				parts = append(parts, fmt.Sprintf("%s %s건", label, formatNumber(count)))
				continue
			}
		}
		parts = append(parts, label)
	}
	if len(parts) == 0 {
		return "", false
	}
	return fmt.Sprintf("주요 원인은 %s입니다.", strings.Join(parts, ", ")), true
}

// fallback delegates to the gateway with a compact serialization of the
// result, then repairs any leftover bracket placeholders.
func (s *Synthesizer) fallback(ctx context.Context, question string, result *proddb.Result, entities extract.Entities) (string, error) {
	answer, err := s.gateway.GenerateAnswer(ctx, question, FormatResultTable(result))
	if err != nil {
		return "", err
	}
	return RepairPlaceholders(answer, result, entities), nil
}

// FormatResultTable serializes a result as a markdown table capped at ten
// rows, the shape the answer prompt expects.
func FormatResultTable(result *proddb.Result) string {
	if result.RowCount() == 0 {
		return "결과 데이터 없음"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "총 %d개 행\n\n", result.RowCount())
	b.WriteString("| " + strings.Join(result.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(result.Columns)) + "\n")

	limit := result.RowCount()
	if limit > 10 {
		limit = 10
	}
	for _, row := range result.Rows[:limit] {
		values := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			values[i] = fmt.Sprintf("%v", row[col])
		}
		b.WriteString("| " + strings.Join(values, " | ") + " |\n")
	}
	if result.RowCount() > 10 {
		fmt.Fprintf(&b, "\n... 외 %d개 행", result.RowCount()-10)
	}
	return b.String()
}

// RepairPlaceholders replaces unfilled bracket tokens the model left in
// its answer with the first numeric value available, so the user never
// sees a template artifact.
func RepairPlaceholders(answer string, result *proddb.Result, entities extract.Entities) string {
	if !placeholderRegex.MatchString(answer) {
		return answer
	}

	replacement := firstNumeric(result, entities)
	if replacement == "" {
		return placeholderRegex.ReplaceAllString(answer, "")
	}
	return placeholderRegex.ReplaceAllString(answer, replacement)
}

func firstNumeric(result *proddb.Result, entities extract.Entities) string {
	if result != nil {
		for _, row := range result.Rows {
			for _, col := range result.Columns {
				if value, ok := toFloat(row[col]); ok {
					return formatNumber(value)
				}
			}
		}
	}
	for _, values := range entities {
		for _, value := range values {
			if _, err := strconv.ParseFloat(value, 64); err == nil {
				return value
			}
		}
	}
	return ""
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func findColumn(columns []string, candidates ...string) string {
	for _, candidate := range candidates {
		for _, col := range columns {
			if strings.EqualFold(col, candidate) {
				return col
			}
		}
	}
	for _, candidate := range candidates {
		for _, col := range columns {
			if strings.Contains(strings.ToLower(col), strings.ToLower(candidate)) {
				return col
			}
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case int:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	case float32:
		return float64(value), true
	case float64:
		return value, true
	case string:
		f, err := strconv.ParseFloat(value, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// formatNumber renders a numeric value with thousands separators; whole
// numbers drop the fraction. The value is formatted in one pass so a
// fraction that rounds up carries into the integer digits.
func formatNumber(v float64) string {
	formatted := strings.TrimSuffix(strconv.FormatFloat(v, 'f', 2, 64), ".00")
	negative := strings.HasPrefix(formatted, "-")
	if negative {
		formatted = formatted[1:]
	}

	whole, fraction, _ := strings.Cut(formatted, ".")
	var b strings.Builder
	for i, d := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	out := b.String()
	if fraction != "" {
		out += "." + fraction
	}
	if negative {
		out = "-" + out
	}
	return out
}
