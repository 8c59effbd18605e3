package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	err := New(CodeConflict, "tag already registered")
	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(nil, CodeConflict))
	assert.False(t, HasCode(errors.New("plain"), CodeConflict))
}

func TestHasCode_Wrapped(t *testing.T) {
	inner := New(CodeExternalAuth, "session rejected")
	outer := Wrap(inner, CodeExternalTransient, "clan lookup failed")

	assert.True(t, HasCode(outer, CodeExternalTransient))
	assert.True(t, HasCode(outer, CodeExternalAuth))

	// Wrapping through fmt keeps the chain intact.
	wrapped := fmt.Errorf("reconcile: %w", outer)
	assert.True(t, HasCode(wrapped, CodeExternalAuth))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodePersistence, CodeOf(New(CodePersistence, "save failed")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "save failed", MessageOf(New(CodePersistence, "save failed")))
	assert.Equal(t, "internal error", MessageOf(errors.New("secret details")))
}
