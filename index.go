package spannerorm

// Index declares a secondary index on a model's table. Models return their
// indexes from the optional Indexes method.
type Index struct {
	// Name is the index name, unique within the database
	Name string
	// Columns are the indexed columns in key order
	Columns []string
	// Unique enforces uniqueness across the indexed columns
	Unique bool
	// NullFiltered excludes rows with a NULL indexed column
	NullFiltered bool
	// Storing lists extra columns copied into the index
	Storing []string
}
