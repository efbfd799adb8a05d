package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "certproof/pkg/domain"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()

	t.Run("zero values when unset", func(t *testing.T) {
		assert.True(t, SessionID(ctx).IsNil())
		assert.Empty(t, RequestID(ctx))
		assert.Empty(t, UserAgent(ctx))
		assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
	})

	t.Run("injected values are returned", func(t *testing.T) {
		sid := id.NewSessionID()
		fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		c := WithSessionID(ctx, sid)
		c = WithRequestID(c, "req-42")
		c = WithTime(c, fixed)
		c = WithClientMetadata(c, "10.0.0.1", "Mozilla/5.0")

		assert.Equal(t, sid, SessionID(c))
		assert.Equal(t, "req-42", RequestID(c))
		assert.Equal(t, fixed, Now(c))
		assert.Equal(t, "10.0.0.1", ClientIP(c))
		assert.Equal(t, "Mozilla/5.0", UserAgent(c))
	})
}
