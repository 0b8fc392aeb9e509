// Package validate provides the structural and content validation gates
// wrapped around both conversion directions. Gates are external schema
// engines behind a small interface; in permissive mode no gate runs at all.
package validate

// Result is the outcome of one validation call
type Result struct {
	Valid  bool
	Errors []string
}

// Gate validates a serialized document against a fixed schema. Implementations
// hold their compiled schema and are safe for concurrent use.
type Gate interface {
	Validate(document []byte) (Result, error)
}

// Nop is a gate that accepts everything; used where no schema is configured
type Nop struct{}

// Validate always reports valid
func (Nop) Validate([]byte) (Result, error) {
	return Result{Valid: true}, nil
}
