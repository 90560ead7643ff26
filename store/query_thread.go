package store

// RowStatus is the status of a row.
type RowStatus string

const (
	Normal   RowStatus = "NORMAL"
	Archived RowStatus = "ARCHIVED"
)

// TurnRole identifies who authored a turn.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// QueryThread groups the turns of one conversation about production data.
type QueryThread struct {
	UID       string
	Title     string
	RowStatus RowStatus
	CreatedTs int64
	UpdatedTs int64
	ID        int32
	CreatorID int32
}

type FindQueryThread struct {
	ID        *int32
	UID       *string
	CreatorID *int32
	RowStatus *RowStatus
	Limit     *int
}

type DeleteQueryThread struct {
	ID int32
}

// QueryTurn is one user or assistant message within a thread.
// Turns are append-only: they are never mutated after creation and are
// removed only when their thread is soft-deleted as a unit.
type QueryTurn struct {
	ThreadID       int32
	Role           TurnRole
	RawText        string
	NormalizedText string // term-dictionary normalized form, user turns only
	GeneratedSQL   string // sanitized SQL, assistant turns only
	ResultSummary  string // compact JSON of {columns, rows, row_count}, assistant turns only
	CreatedTs      int64
	ID             int64
}

type FindQueryTurn struct {
	ThreadID *int32
	Role     *TurnRole
	Limit    *int
}
