package llms

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		status    int
		transient bool
		auth      bool
	}{
		{status: http.StatusTooManyRequests, transient: true},
		{status: http.StatusInternalServerError, transient: true},
		{status: http.StatusBadGateway, transient: true},
		{status: 529, transient: true},
		{status: http.StatusRequestTimeout, transient: true},
		{status: http.StatusUnauthorized, auth: true},
		{status: http.StatusForbidden, auth: true},
		{status: http.StatusBadRequest},
		{status: http.StatusNotFound},
	}
	for _, tc := range tcs {
		err := ClassifyStatus(ProviderOpenAI, tc.status, errors.New("boom"))
		assert.Equal(t, tc.transient, IsTransient(err), "status %d", tc.status)
		assert.Equal(t, !tc.transient, IsFatal(err), "status %d", tc.status)
		assert.Equal(t, tc.auth, errors.Is(err, ErrAuth), "status %d", tc.status)
		assert.Contains(t, err.Error(), "boom")
	}

	err := ClassifyStatus(ProviderAnthropic, 500, nil)
	assert.EqualError(t, err, "ANTHROPIC: status 500")
}

func TestClassifyTransportError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.NoError(t, ClassifyTransportError(ctx, ProviderDeepSeek, nil))
	assert.True(t, IsTransient(ClassifyTransportError(ctx, ProviderDeepSeek, io.ErrUnexpectedEOF)))
	assert.True(t, IsTransient(ClassifyTransportError(ctx, ProviderDeepSeek, context.DeadlineExceeded)))
	assert.True(t, IsFatal(ClassifyTransportError(ctx, ProviderDeepSeek, errors.New("bad url"))))

	// already classified errors are kept
	auth := MissingTokenError(ProviderDeepSeek)
	assert.Equal(t, auth, ClassifyTransportError(ctx, ProviderDeepSeek, auth))
	assert.True(t, errors.Is(auth, ErrMissingToken))
	assert.True(t, IsFatal(auth))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err := ClassifyTransportError(cctx, ProviderDeepSeek, context.Canceled)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsTransient(err))
	assert.False(t, IsFatal(err))
}

func TestProviderCapabilities(t *testing.T) {
	t.Parallel()

	assert.True(t, ProviderAnthropic.Supports(CapabilityInterleavedText))
	assert.True(t, ProviderDeepSeek.Supports(CapabilityReasoning))
	assert.False(t, ProviderOpenAI.Supports(CapabilityReasoning))
	assert.True(t, ProviderOpenAI.Supports(CapabilityMultiToolCalling))
	assert.False(t, ProviderType("OTHER").Supports(CapabilityText))
}
