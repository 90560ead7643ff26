package store

// FieldType is the value type of a filterable field.
type FieldType string

const (
	FieldTypeNumeric FieldType = "numeric"
	FieldTypeDate    FieldType = "date"
	FieldTypeString  FieldType = "string"
	FieldTypeBoolean FieldType = "boolean"
)

// ValidationType selects how extracted candidate values are checked
// against ValidValues.
type ValidationType string

const (
	ValidationNone  ValidationType = "none"
	ValidationExact ValidationType = "exact"
	ValidationRange ValidationType = "range"
)

// FilterRule is an admin-defined extraction rule mapping user phrasing to a
// typed filter value. Rules are owned by the admin subsystem and read-only
// here; the engine takes a snapshot of the rule set once per request.
type FilterRule struct {
	FieldName          string
	DisplayName        string
	FieldType          FieldType
	ExtractionPattern  string            // regex, tried after keywords; must compile
	ExtractionKeywords []string          // exact substring triggers, tried first
	ValueMapping       map[string]string // keyword -> canonical value
	ValidValues        []string          // required when ValidationType != none
	ValidationType     ValidationType
	IsOptional         bool
	MultipleAllowed    bool
	ID                 int32
}

// TermMapping rewrites a user expression to the standard domain term
// before extraction and SQL generation ("어제" -> "DATE_SUB(CURDATE(), INTERVAL 1 DAY)").
type TermMapping struct {
	UserExpression string
	StandardTerm   string
	ID             int32
}

// Knowledge is one domain note injected into SQL generation prompts.
type Knowledge struct {
	Category string
	Content  string
	ID       int32
}

// SchemaColumn describes one column of the production database.
type SchemaColumn struct {
	Name        string
	DataType    string
	Description string
}

// SchemaTable describes one production table and its columns. The set of
// SchemaTables is the schema catalog handed to the SQL generator and
// indexed by the schema retriever.
type SchemaTable struct {
	Name        string
	Description string
	Columns     []SchemaColumn
	ID          int32
}

// ReferenceLookup is an admin-configured named query yielding reference
// rows (e.g. the list of valid machine IDs). The agent runs these against
// the production database when it needs grounding data before generating SQL.
type ReferenceLookup struct {
	Name        string
	Description string
	Query       string
	ID          int32
}
