package spannerorm

import "reflect"

// Relationship declares that a struct field receives rows of a related model
// when a query asks for them with Includes. Models return their relationships
// from the optional Relationships method.
type Relationship struct {
	// Field names the Go struct field that receives the related rows. The
	// field must be tagged `spanner:"-"` and be a slice of the target model,
	// or a pointer to it when Single is set.
	Field string
	// Target is a value of the related model, for example Album{}. The target
	// must be registered before the relationship is queried.
	Target TableNamer
	// Constraints maps columns of this model to the matching columns of the
	// target model
	Constraints map[string]string
	// Single marks a to-one relationship. Queries fail if more than one
	// related row matches.
	Single bool

	fieldIndex  int
	targetTable string
	elemType    reflect.Type
}
