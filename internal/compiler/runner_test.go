package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTail(t *testing.T) {
	in := "error: failed to load manifest\n\n  caused by: missing field\n  caused by: invalid type\n"
	assert.Equal(t, "caused by: missing field; caused by: invalid type", tail(in, 2))
	assert.Equal(t, "error: failed to load manifest; caused by: missing field; caused by: invalid type", tail(in, 5))
	assert.Equal(t, "", tail("", 3))
}

func TestCargoErrorMessage(t *testing.T) {
	err := &CargoError{Err: assert.AnError, Stderr: "could not find Cargo.toml"}
	assert.Contains(t, err.Error(), "could not find Cargo.toml")
	assert.ErrorIs(t, err, assert.AnError)
}
