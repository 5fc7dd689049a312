package unit

import (
	"errors"
	"fmt"
)

var ErrBadArgs = errors.New("bad arguments")

// StringArg returns args[i] as a string.
func StringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing %s", ErrBadArgs, name)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrBadArgs, name, args[i])
	}
	return s, nil
}

// OptionalStringArg is StringArg with "" for a missing argument.
func OptionalStringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", nil
	}
	return StringArg(args, i, name)
}
