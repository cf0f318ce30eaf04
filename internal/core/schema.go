package core

// Schema represents the structure of a database table as reported by the
// storage engine.
type Schema struct {
	// TableName is the name of the table.
	TableName string

	// PrimaryKey lists the primary key columns in index order.
	PrimaryKey []string

	// AutoIncrement is the auto-increment column, if any.
	AutoIncrement string

	// Columns contains all column definitions for the table.
	Columns []Column

	// Indexes contains all index definitions for the table.
	Indexes []Index
}

// Column represents a single column in a database table.
type Column struct {
	// Name is the column name.
	Name string

	// Type is the database type (e.g., "INT", "VARCHAR(255)", "TIMESTAMP").
	Type string

	// Nullable indicates whether the column can contain NULL values.
	Nullable bool

	// Default is the default value for the column, if any.
	Default any

	// AutoIncrement is set for columns the engine fills on insert.
	AutoIncrement bool

	// Caster maps a raw value to its storage-typed form. Nil means values
	// pass through unchanged.
	Caster func(any) any
}

// Cast applies the column caster to v, if one is set.
func (c Column) Cast(v any) any {
	if c.Caster == nil {
		return v
	}
	return c.Caster(v)
}

// Index represents a database index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Primary bool
}
