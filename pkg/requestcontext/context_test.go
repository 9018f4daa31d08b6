package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessors(t *testing.T) {
	t.Run("empty context yields zero values", func(t *testing.T) {
		ctx := context.Background()
		assert.Empty(t, UserID(ctx))
		assert.Empty(t, UserToken(ctx))
		assert.Empty(t, RequestID(ctx))
		assert.Empty(t, ClientIP(ctx))
		assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
	})

	t.Run("values round trip", func(t *testing.T) {
		fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		ctx := WithUserID(context.Background(), "user-1")
		ctx = WithUserToken(ctx, "tok")
		ctx = WithRequestID(ctx, "req-1")
		ctx = WithClientMetadata(ctx, "10.0.0.1", "okhttp/4.12")
		ctx = WithTime(ctx, fixed)

		assert.Equal(t, "user-1", UserID(ctx))
		assert.Equal(t, "tok", UserToken(ctx))
		assert.Equal(t, "req-1", RequestID(ctx))
		assert.Equal(t, "10.0.0.1", ClientIP(ctx))
		assert.Equal(t, "okhttp/4.12", UserAgent(ctx))
		assert.Equal(t, fixed, Now(ctx))
	})
}
