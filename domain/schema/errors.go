package schema

import "errors"

// ErrConnection indicates the target database could not be reached.
var ErrConnection = errors.New("database connection failed")

// ErrIntrospection indicates schema metadata could not be read, for example
// due to insufficient privileges.
var ErrIntrospection = errors.New("schema introspection failed")
