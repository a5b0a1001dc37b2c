package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{Unavailable("store offline", nil), KindTransient},
		{Timeout("write timed out", nil), KindTransient},
		{PermissionDenied("rules rejected", nil), KindPermission},
		{Schema("missing index", nil), KindSchema},
		{Validation("empty message", nil), KindValidation},
		{NotFound("Product", nil), KindOther},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTransient},
		{nil, KindOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, KindOf(tc.err), "%v", tc.err)
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Timeout("x", nil)))
	assert.True(t, Retryable(TooManyRequests("slow down", time.Second)))
	assert.False(t, Retryable(Forbidden("no", nil)))
	assert.False(t, Retryable(fmt.Errorf("plain")))
}

func TestIsUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("send: %w", NotFound("Message", nil))
	assert.True(t, Is(err, CodeNotFound))
	assert.Equal(t, CodeNotFound, Code(err))
	assert.Equal(t, CodeInternal, Code(fmt.Errorf("plain")))
}

func TestFromContextMapsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := FromContext(ctx, "record pitch", ctx.Err())
	assert.True(t, Is(err, CodeTimeout))
	assert.True(t, Retryable(err))

	var appErr *AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusGatewayTimeout, appErr.Status)

	assert.NoError(t, FromContext(context.Background(), "noop", nil))
}
