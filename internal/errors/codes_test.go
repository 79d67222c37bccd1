package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeNotFound, "opportunity not found")
	assert.Equal(t, "[NOT_FOUND] opportunity not found", err.Error())

	wrapped := Wrap(stderrors.New("dial tcp: refused"), CodeStoreUnavailable, "query failed")
	assert.Contains(t, wrapped.Error(), "STORE_UNAVAILABLE")
	assert.Contains(t, wrapped.Error(), "dial tcp: refused")
}

func TestIsCode_SeesThroughWrapping(t *testing.T) {
	base := ProviderTransient("rate limited", nil)
	wrapped := fmt.Errorf("embedding batch: %w", base)

	assert.True(t, IsCode(wrapped, CodeProviderTransient))
	assert.False(t, IsCode(wrapped, CodeProviderFatal))
	assert.False(t, IsCode(stderrors.New("plain"), CodeProviderTransient))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ProviderTransient("timeout", nil)))
	assert.True(t, IsTransient(StoreUnavailable("down", nil)))
	assert.False(t, IsTransient(ProviderFatal("bad input", nil)))
	assert.False(t, IsTransient(NotFound("opportunity", "opp-1")))
	assert.False(t, IsTransient(stderrors.New("uncoded")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeRateLimited, CodeOf(RateLimited("slow down"), CodeProviderFatal))
	assert.Equal(t, CodeProviderFatal, CodeOf(stderrors.New("uncoded"), CodeProviderFatal))
}
