package queryengine

import (
	"context"
	"strings"
	"testing"

	"github.com/prodtalk/prodtalk/ai/llm"
	"github.com/prodtalk/prodtalk/internal/profile"
	"github.com/prodtalk/prodtalk/store"
	"github.com/prodtalk/prodtalk/store/proddb"
)

// memDriver is an in-memory store.Driver holding the admin metadata and
// thread state one engine test needs.
type memDriver struct {
	threads []*store.QueryThread
	turns   []*store.QueryTurn

	rules    []*store.FilterRule
	terms    []*store.TermMapping
	notes    []*store.Knowledge
	schema   []*store.SchemaTable
	lookups  []*store.ReferenceLookup
	threadID int32
	turnID   int64
}

func (d *memDriver) GetDB() any                        { return nil }
func (d *memDriver) Close() error                      { return nil }
func (d *memDriver) Migrate(ctx context.Context) error { return nil }

func (d *memDriver) CreateQueryThread(ctx context.Context, create *store.QueryThread) (*store.QueryThread, error) {
	d.threadID++
	create.ID = d.threadID
	create.RowStatus = store.Normal
	d.threads = append(d.threads, create)
	return create, nil
}

func (d *memDriver) ListQueryThreads(ctx context.Context, find *store.FindQueryThread) ([]*store.QueryThread, error) {
	var out []*store.QueryThread
	for _, thread := range d.threads {
		if find.UID != nil && thread.UID != *find.UID {
			continue
		}
		if find.CreatorID != nil && thread.CreatorID != *find.CreatorID {
			continue
		}
		if find.RowStatus != nil && thread.RowStatus != *find.RowStatus {
			continue
		}
		out = append(out, thread)
	}
	return out, nil
}

func (d *memDriver) DeleteQueryThread(ctx context.Context, delete *store.DeleteQueryThread) error {
	for _, thread := range d.threads {
		if thread.ID == delete.ID {
			thread.RowStatus = store.Archived
		}
	}
	return nil
}

func (d *memDriver) CreateQueryTurn(ctx context.Context, create *store.QueryTurn) (*store.QueryTurn, error) {
	d.turnID++
	create.ID = d.turnID
	d.turns = append(d.turns, create)
	return create, nil
}

func (d *memDriver) ListQueryTurns(ctx context.Context, find *store.FindQueryTurn) ([]*store.QueryTurn, error) {
	var out []*store.QueryTurn
	for _, turn := range d.turns {
		if find.ThreadID != nil && turn.ThreadID != *find.ThreadID {
			continue
		}
		if find.Role != nil && turn.Role != *find.Role {
			continue
		}
		out = append(out, turn)
	}
	return out, nil
}

func (d *memDriver) ListFilterRules(ctx context.Context) ([]*store.FilterRule, error) {
	return d.rules, nil
}

func (d *memDriver) ListTermMappings(ctx context.Context) ([]*store.TermMapping, error) {
	return d.terms, nil
}

func (d *memDriver) ListKnowledge(ctx context.Context) ([]*store.Knowledge, error) {
	return d.notes, nil
}

func (d *memDriver) ListSchemaTables(ctx context.Context) ([]*store.SchemaTable, error) {
	return d.schema, nil
}

func (d *memDriver) ListReferenceLookups(ctx context.Context) ([]*store.ReferenceLookup, error) {
	return d.lookups, nil
}

type scriptedGateway struct {
	decision string
	answer   string

	decisionCalls int
	lastUser      string
}

func (g *scriptedGateway) Complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	g.decisionCalls++
	g.lastUser = user
	return g.decision, nil
}

func (g *scriptedGateway) GenerateSQL(ctx context.Context, req *llm.SQLRequest) (string, error) {
	return "SELECT COUNT(*) AS total_cycles FROM injection_cycle", nil
}

func (g *scriptedGateway) GenerateAnswer(ctx context.Context, question, resultTable string) (string, error) {
	return g.answer, nil
}

type memExecutor struct {
	result *proddb.Result
	gotSQL []string
}

func (e *memExecutor) Execute(ctx context.Context, sql string) (*proddb.Result, error) {
	e.gotSQL = append(e.gotSQL, sql)
	return e.result, nil
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		AgentMaxIterations: 3,
		AgentDeadline:      30,
		ProdRowCap:         100,
	}
}

func seededDriver() *memDriver {
	return &memDriver{
		terms: []*store.TermMapping{
			{ID: 1, UserExpression: "로딩", StandardTerm: "로딩기"},
		},
		rules: []*store.FilterRule{
			{
				ID:                 1,
				FieldName:          "machine_id",
				FieldType:          store.FieldTypeNumeric,
				ExtractionKeywords: []string{"1번"},
				ValueMapping:       map[string]string{"1번": "1"},
				ValidationType:     store.ValidationNone,
			},
		},
		schema: []*store.SchemaTable{
			{
				ID:          1,
				Name:        "injection_cycle",
				Description: "사출 사이클 기록",
				Columns: []store.SchemaColumn{
					{Name: "machine_id", DataType: "int", Description: "설비 번호"},
					{Name: "cycle_date", DataType: "date", Description: "생산 일자"},
				},
			},
		},
		notes: []*store.Knowledge{
			{ID: 1, Category: "metric", Content: "불량율은 defect_count/total_cycles*100으로 계산한다"},
		},
	}
}

func newTestEngine(driver *memDriver, gw *scriptedGateway, ex *memExecutor) *Engine {
	p := testProfile()
	return NewEngine(Config{
		Profile:  p,
		Store:    store.New(driver, p),
		Executor: ex,
		Gateway:  gw,
	})
}

func TestProcessTurnCreatesThreadAndPersists(t *testing.T) {
	driver := seededDriver()
	gw := &scriptedGateway{
		decision: `{"action":"query_production","reasoning":"count","sql":"SELECT COUNT(*) AS total_cycles FROM injection_cycle WHERE machine_id = 1"}`,
	}
	ex := &memExecutor{result: &proddb.Result{
		Columns: []string{"total_cycles"},
		Rows:    []map[string]any{{"total_cycles": int64(2500)}},
	}}

	resp, err := newTestEngine(driver, gw, ex).ProcessTurn(context.Background(), 1, "", "1번 기계 오늘 생산량은?")
	if err != nil {
		t.Fatal(err)
	}

	if resp.ThreadUID == "" {
		t.Error("expected a new thread uid")
	}
	if len(driver.threads) != 1 {
		t.Fatalf("threads: got %d, want 1", len(driver.threads))
	}
	if driver.threads[0].Title != "1번 기계 오늘 생산량은?" {
		t.Errorf("thread title: got %q", driver.threads[0].Title)
	}

	// Deterministic count path with thousands separators.
	if !strings.Contains(resp.Answer, "2,500") {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if want := "SELECT COUNT(*) AS total_cycles FROM injection_cycle WHERE machine_id = 1 LIMIT 100;"; resp.GeneratedSQL != want {
		t.Errorf("sql: got %q, want %q", resp.GeneratedSQL, want)
	}
	if len(ex.gotSQL) != 1 || ex.gotSQL[0] != resp.GeneratedSQL {
		t.Errorf("executed sql: got %v", ex.gotSQL)
	}

	if len(driver.turns) != 2 {
		t.Fatalf("turns: got %d, want 2", len(driver.turns))
	}
	user, assistant := driver.turns[0], driver.turns[1]
	if user.Role != store.TurnRoleUser || assistant.Role != store.TurnRoleAssistant {
		t.Fatalf("turn roles: got %s, %s", user.Role, assistant.Role)
	}
	if user.RawText != "1번 기계 오늘 생산량은?" {
		t.Errorf("user raw text: got %q", user.RawText)
	}
	if assistant.GeneratedSQL != resp.GeneratedSQL {
		t.Errorf("assistant sql: got %q", assistant.GeneratedSQL)
	}
	if !strings.Contains(assistant.ResultSummary, `"row_count":1`) {
		t.Errorf("result summary: got %q", assistant.ResultSummary)
	}
	if resp.UserTurnID == 0 || resp.AssistantTurnID == 0 {
		t.Error("turn ids not set")
	}
}

func TestProcessTurnNormalizesTerms(t *testing.T) {
	driver := seededDriver()
	gw := &scriptedGateway{
		decision: `{"action":"ask_clarification","reasoning":"ambiguous","message":"어느 설비인가요?"}`,
	}

	resp, err := newTestEngine(driver, gw, &memExecutor{}).ProcessTurn(context.Background(), 1, "", "로딩 상태 알려줘")
	if err != nil {
		t.Fatal(err)
	}

	if resp.NormalizedMessage != "로딩기 상태 알려줘" {
		t.Errorf("normalized: got %q", resp.NormalizedMessage)
	}
	if resp.OriginalMessage != "로딩 상태 알려줘" {
		t.Errorf("original: got %q", resp.OriginalMessage)
	}
	// The persisted user turn carries both forms.
	if driver.turns[0].NormalizedText != "로딩기 상태 알려줘" {
		t.Errorf("persisted normalized: got %q", driver.turns[0].NormalizedText)
	}
	if resp.Answer != "어느 설비인가요?" {
		t.Errorf("answer: got %q", resp.Answer)
	}
}

func TestProcessTurnContinuesThread(t *testing.T) {
	driver := seededDriver()
	gw := &scriptedGateway{
		decision: `{"action":"query_production","reasoning":"count","sql":"SELECT COUNT(*) AS total_cycles FROM injection_cycle"}`,
	}
	ex := &memExecutor{result: &proddb.Result{
		Columns: []string{"total_cycles"},
		Rows:    []map[string]any{{"total_cycles": int64(10)}},
	}}
	engine := newTestEngine(driver, gw, ex)

	first, err := engine.ProcessTurn(context.Background(), 1, "", "1번 기계 생산량은?")
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.ProcessTurn(context.Background(), 1, first.ThreadUID, "어제는 몇 건이야?")
	if err != nil {
		t.Fatal(err)
	}

	if second.ThreadUID != first.ThreadUID {
		t.Errorf("thread uid changed: %q vs %q", second.ThreadUID, first.ThreadUID)
	}
	if len(driver.threads) != 1 {
		t.Errorf("threads: got %d, want 1", len(driver.threads))
	}
	if len(driver.turns) != 4 {
		t.Errorf("turns: got %d, want 4", len(driver.turns))
	}
	// The second turn inherits machine_id=1 from the first via backfill.
	if !strings.Contains(gw.lastUser, `"machine_id":["1"]`) {
		t.Errorf("decision prompt missing backfilled entity: %q", gw.lastUser)
	}
}

func TestProcessTurnUnknownThread(t *testing.T) {
	driver := seededDriver()
	_, err := newTestEngine(driver, &scriptedGateway{}, &memExecutor{}).ProcessTurn(context.Background(), 1, "no-such-uid", "질문")
	if err == nil {
		t.Fatal("expected error for unknown thread")
	}
	if len(driver.turns) != 0 {
		t.Error("no turns should persist for an unknown thread")
	}
}

func TestProcessTurnRejectsEmptyMessage(t *testing.T) {
	if _, err := newTestEngine(seededDriver(), &scriptedGateway{}, &memExecutor{}).ProcessTurn(context.Background(), 1, "", "   "); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestLoadReferenceDataValidatesLookups(t *testing.T) {
	driver := seededDriver()
	driver.lookups = []*store.ReferenceLookup{
		{ID: 1, Name: "machines", Query: "SELECT machine_id FROM machine"},
		{ID: 2, Name: "bad", Query: "DROP TABLE machine"},
	}
	ex := &memExecutor{result: &proddb.Result{
		Columns: []string{"machine_id"},
		Rows:    []map[string]any{{"machine_id": int64(1)}, {"machine_id": int64(2)}},
	}}
	engine := newTestEngine(driver, &scriptedGateway{}, ex)

	data, err := engine.LoadReferenceData(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(data["machines"]) != 2 {
		t.Errorf("machines: got %d rows", len(data["machines"]))
	}
	if data["bad"] != nil {
		t.Error("rejected lookup must yield nil rows")
	}
	if len(ex.gotSQL) != 1 {
		t.Fatalf("executor calls: got %d, want 1", len(ex.gotSQL))
	}
	if !strings.HasSuffix(ex.gotSQL[0], "LIMIT 100;") {
		t.Errorf("lookup sql not sanitized: %q", ex.gotSQL[0])
	}
}
