package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedRunID_ReturnsSameID(t *testing.T) {
	gen := NewFixedRunID("scenario-run")

	assert.Equal(t, "scenario-run", gen.Generate())
	assert.Equal(t, "scenario-run", gen.Generate())
}

func TestFixedRunID_EmptyUsesDefault(t *testing.T) {
	assert.Equal(t, DefaultRunID, NewFixedRunID("").Generate())
}
