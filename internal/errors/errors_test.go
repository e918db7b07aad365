package appErrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsComparesKinds(t *testing.T) {
	err := NewCampaignNotFound(4)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "not_found: campaign with ID 4 not found", err.Error())

	wrapped := fmt.Errorf("donate: %w", NewCooldownActive(90))
	assert.ErrorIs(t, wrapped, ErrCooldownActive)
	assert.Equal(t, KindCooldownActive, KindOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewOracle("convert target", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrOracle)
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
