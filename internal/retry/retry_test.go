package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-teamchat/internal/testutil"
	"github.com/stretchr/testify/assert"
)

var fast = Policy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsed:      time.Second,
	MaxRetries:      3,
}.WithPermanent(errNotFound)

var errNotFound = errors.New("not found")

func TestDo(t *testing.T) {
	transient := errors.New("connection reset")

	tcases := []struct {
		name     string
		failures int
		err      error
		expected error
		attempts int
	}{
		{name: "succeeds first try", failures: 0, attempts: 1},
		{name: "recovers from transient errors", failures: 2, err: transient, attempts: 3},
		{name: "gives up after max retries", failures: 10, err: transient, expected: transient, attempts: 4},
		{name: "does not retry permanent errors", failures: 10, err: errNotFound, expected: errNotFound, attempts: 1},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			attempts := 0
			err := fast.Do(context.Background(), testutil.TestLogger(t), "write", func() error {
				attempts++
				if attempts <= tc.failures {
					return tc.err
				}
				return nil
			})

			if tc.expected != nil {
				assert.ErrorIs(t, err, tc.expected)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.attempts, attempts)
		})
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := fast.Do(ctx, nil, "write", func() error {
		attempts++
		return errors.New("boom")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, attempts, 1, "expected a canceled context to stop retries")
}
