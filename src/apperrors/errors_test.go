package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndCodeSurviveWrapping(t *testing.T) {
	err := Conflict("ALREADY_PROCESSED", "request is no longer pending")
	wrapped := fmt.Errorf("advancing request 42: %w", err)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "ALREADY_PROCESSED", CodeOf(wrapped))
}

func TestInsufficientFundsCarriesAmounts(t *testing.T) {
	err := &InsufficientFunds{Balance: 1000, Requested: 5000}
	wrapped := fmt.Errorf("settling: %w", err)

	assert.Equal(t, KindInsufficientFunds, KindOf(wrapped))
	assert.Equal(t, "INSUFFICIENT_FUNDS", CodeOf(wrapped))

	var fundsErr *InsufficientFunds
	assert.True(t, errors.As(wrapped, &fundsErr))
	assert.Equal(t, int64(1000), fundsErr.Balance)
	assert.Equal(t, int64(5000), fundsErr.Requested)
}

func TestUnknownErrors(t *testing.T) {
	err := errors.New("disk on fire")
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, "", CodeOf(err))
}

func TestUpstreamUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("provider unreachable", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindUpstream, KindOf(err))
}
