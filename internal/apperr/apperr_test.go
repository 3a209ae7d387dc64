package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistenceWrapsInfrastructureErrors(t *testing.T) {
	cause := errors.New("connection reset")
	err := Persistence("heartbeat", cause)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "heartbeat")
}

func TestPersistenceKeepsDomainErrors(t *testing.T) {
	err := fmt.Errorf("bin b1: %w", ErrNotFound)
	wrapped := Persistence("get bin", err)

	assert.Equal(t, err, wrapped)
	assert.NotErrorIs(t, wrapped, ErrPersistence)
}

func TestPersistenceNil(t *testing.T) {
	assert.NoError(t, Persistence("noop", nil))
}

func TestIsDomain(t *testing.T) {
	assert.True(t, IsDomain(fmt.Errorf("claim: %w", ErrBinUnavailable)))
	assert.True(t, IsDomain(ErrUnknownContainer))
	assert.False(t, IsDomain(ErrConflict))
	assert.False(t, IsDomain(errors.New("boom")))
}
