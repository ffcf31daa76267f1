package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextDeadlines(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context) (context.Context, context.CancelFunc)
		want time.Duration
	}{
		{"query", QueryContext, DefaultQueryTimeout},
		{"write", WriteContext, DefaultWriteTimeout},
		{"bulk", BulkContext, DefaultBulkTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.fn(context.Background())
			defer cancel()

			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(tt.want), deadline, time.Second)
		})
	}
}

func TestParentCancellationPropagates(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := QueryContext(parent)
	defer cancel()

	cancelParent()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
