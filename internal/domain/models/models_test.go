package models

import (
	"testing"

	"taskmanager/internal/domain/errors"

	"github.com/stretchr/testify/assert"
)

func TestCheckStatus(t *testing.T) {
	for _, status := range TaskStatuses {
		assert.NoError(t, CheckStatus(status), status)
	}

	for _, status := range []string{"", "completed", "DONE", "NOT ASSIGNED"} {
		err := CheckStatus(status)
		assert.ErrorIs(t, err, errors.ErrInvalidStatus, status)
	}
}
