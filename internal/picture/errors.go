package picture

import "fmt"

// InvalidInputError reports a configuration field that does not satisfy its
// type contract. It is a programmer error and is returned, never recovered.
type InvalidInputError struct {
	Field string
	Type  string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("expected attribute %q to evaluate to %s", e.Field, e.Type)
}
