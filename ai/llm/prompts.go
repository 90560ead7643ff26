package llm

import (
	"fmt"
	"strings"

	"github.com/prodtalk/prodtalk/ai/retrieval"
	"github.com/prodtalk/prodtalk/store"
)

// SQLRequest carries everything the SQL prompt embeds: the normalized
// question, the schema catalog, retrieval hints and domain knowledge.
type SQLRequest struct {
	Question  string
	Schema    []*store.SchemaTable
	Hints     []retrieval.Hint
	Knowledge []*store.Knowledge
	Entities  map[string][]string
}

const sqlSystemPrompt = `당신은 사출 성형 생산 데이터 전문가입니다. 사용자의 자연어 질문을 정확한 SQL 쿼리로 변환하세요.

## SQL 생성 규칙
1. 표준 SQL 문법 사용
2. SELECT 쿼리만 생성 (INSERT, UPDATE, DELETE 금지)
3. 모든 쿼리에 LIMIT 100 추가
4. 집계 함수 사용 시 명확한 별칭 제공
5. 주석 제외
6. 비교 질문("더 많다", "차이", "비교")이 있으면 두 기간을 period_a_*, period_b_* 별칭으로 조회`

// Few-shot examples keep small local models on the expected output shape.
const sqlFewShot = `## 예제

질문: "오늘 생산량은?"
SQL: SELECT COUNT(*) AS total_cycles FROM injection_cycle WHERE cycle_date = CURDATE() LIMIT 100;

질문: "어제 불량유형별 불량은?"
SQL: SELECT defect_type_id, COUNT(*) AS count FROM injection_cycle WHERE cycle_date = DATE_SUB(CURDATE(), INTERVAL 1 DAY) AND has_defect = 1 GROUP BY defect_type_id ORDER BY count DESC LIMIT 100;

질문: "오늘 불량률은?"
SQL: SELECT COUNT(*) AS total, SUM(CASE WHEN has_defect = 1 THEN 1 ELSE 0 END) AS defect_count, ROUND(SUM(CASE WHEN has_defect = 1 THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) AS defect_rate FROM injection_cycle WHERE cycle_date = CURDATE() LIMIT 100;

질문: "지난주와 이번주 불량률을 비교해줘"
SQL: SELECT SUM(CASE WHEN cycle_date < DATE_SUB(CURDATE(), INTERVAL 7 DAY) AND has_defect = 1 THEN 1 ELSE 0 END) AS period_a_defects, SUM(CASE WHEN cycle_date < DATE_SUB(CURDATE(), INTERVAL 7 DAY) THEN 1 ELSE 0 END) AS period_a_total, SUM(CASE WHEN cycle_date >= DATE_SUB(CURDATE(), INTERVAL 7 DAY) AND has_defect = 1 THEN 1 ELSE 0 END) AS period_b_defects, SUM(CASE WHEN cycle_date >= DATE_SUB(CURDATE(), INTERVAL 7 DAY) THEN 1 ELSE 0 END) AS period_b_total FROM injection_cycle LIMIT 100;`

func buildSQLPrompt(req *SQLRequest) string {
	var b strings.Builder

	b.WriteString("## 데이터베이스 스키마\n")
	for _, table := range req.Schema {
		fmt.Fprintf(&b, "- %s: %s\n", table.Name, table.Description)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  - %s (%s): %s\n", col.Name, col.DataType, col.Description)
		}
	}

	if len(req.Knowledge) > 0 {
		b.WriteString("\n## 도메인 지식\n")
		for _, note := range req.Knowledge {
			fmt.Fprintf(&b, "- %s\n", note.Content)
		}
	}

	if len(req.Hints) > 0 {
		b.WriteString("\n## 관련 컨텍스트\n")
		for _, hint := range req.Hints {
			fmt.Fprintf(&b, "- [%s] %s\n", hint.Source, hint.Text)
		}
	}

	if len(req.Entities) > 0 {
		b.WriteString("\n## 추출된 필터 조건\n")
		for field, values := range req.Entities {
			fmt.Fprintf(&b, "- %s = %s\n", field, strings.Join(values, ", "))
		}
	}

	b.WriteString("\n")
	b.WriteString(sqlFewShot)
	fmt.Fprintf(&b, "\n\n## 사용자 질문\n%q\n\n이 질문을 SQL로 변환하세요. SQL만 출력하고 설명은 포함하지 마세요.", req.Question)
	return b.String()
}

const answerSystemPrompt = `사용자의 질문에 대해 데이터베이스 조회 결과를 바탕으로 자연스러운 한국어 답변을 해주세요.

## 답변 규칙
1. 사람이 대답하는 것처럼 자연스럽게 답변하기
2. 숫자에는 천 단위 구분 기호(,) 포함
3. 날짜는 읽기 쉬운 형식으로 표현
4. 데이터가 없으면 그 이유를 자연스럽게 설명
5. 이모지나 특수 기호는 사용하지 않기
6. 2-3 문장으로 간결하게 답변`

func buildAnswerPrompt(question, resultTable string) string {
	return fmt.Sprintf("## 사용자 질문\n%s\n\n## 조회 결과\n%s", question, resultTable)
}
