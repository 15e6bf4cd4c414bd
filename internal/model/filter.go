package model

// FieldType selects which part of a Minion a Filter inspects.
type FieldType string

const (
	FieldTypeNone    FieldType = ""
	FieldTypeObject  FieldType = "object"
	FieldTypeGrain   FieldType = "grain"
	FieldTypePackage FieldType = "package"
)

// Operand is the comparison applied between a minion's field value and a
// Filter's Value.
type Operand string

const (
	OperandContains           Operand = "c"
	OperandNotContains        Operand = "nc"
	OperandEquals             Operand = "e"
	OperandNotEquals          Operand = "ne"
	OperandStartsWith         Operand = "sw"
	OperandEndsWith           Operand = "ew"
	OperandGreaterThanOrEqual Operand = "gte"
	OperandLessThanOrEqual    Operand = "lte"
)

// Filter is one clause of a minion query. A minion passes a Filter list iff
// it passes every Filter (AND semantics).
type Filter struct {
	FieldType FieldType `json:"fieldType"`
	Field     string    `json:"field"`
	Operand   Operand   `json:"operand"`
	Value     string    `json:"value"`
}

// Paginate is an optional (limit, offset) pair.
type Paginate struct {
	Limit  int64
	Offset int64
}

// Sort is a "field.asc|desc" style sort key understood by the store
// backends. The zero value means unsorted.
type Sort string

const (
	SortMinionIDAsc                   Sort = "id.asc"
	SortMinionIDDesc                  Sort = "id.desc"
	SortMinionLastSeenAsc             Sort = "lastSeen.asc"
	SortMinionLastSeenDesc            Sort = "lastSeen.desc"
	SortMinionOSTypeAsc               Sort = "osType.asc"
	SortMinionOSTypeDesc              Sort = "osType.desc"
	SortMinionConformitySuccessAsc    Sort = "conformitySuccess.asc"
	SortMinionConformitySuccessDesc   Sort = "conformitySuccess.desc"
	SortMinionConformityIncorrectAsc  Sort = "conformityIncorrect.asc"
	SortMinionConformityIncorrectDesc Sort = "conformityIncorrect.desc"
	SortMinionConformityErrorAsc      Sort = "conformityError.asc"
	SortMinionConformityErrorDesc     Sort = "conformityError.desc"

	SortJobIDAsc        Sort = "id.asc"
	SortJobTimestampAsc Sort = "timestamp.asc"
	SortJobJidAsc       Sort = "jid.asc"
	SortJobUserAsc      Sort = "user.asc"
)
