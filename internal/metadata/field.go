package metadata

type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Default   any      `json:"default,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	MinLength int      `json:"min_length,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Precision int      `json:"precision,omitempty"`
	Auto      string   `json:"auto,omitempty"`   // "create" or "update"
	Hashed    bool     `json:"hashed,omitempty"` // stored as a bcrypt hash, never rendered
}

// Field types understood by the query builder and rule derivation.
const (
	TypeString    = "string"
	TypeText      = "text"
	TypeInt       = "int"
	TypeBigInt    = "bigint"
	TypeFloat     = "float"
	TypeDecimal   = "decimal"
	TypeBoolean   = "boolean"
	TypeUUID      = "uuid"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeJSON      = "json"
)

// IsAuto returns true if the field is auto-managed by the engine.
func (f Field) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}

// IsTemporal reports whether values of the field are dates or timestamps.
func (f Field) IsTemporal() bool {
	return f.Type == TypeDate || f.Type == TypeTimestamp
}
