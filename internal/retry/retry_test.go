package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func TestReadRetriesTransientErrors(t *testing.T) {
	calls := 0
	v, err := Read(context.Background(), fast, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("timeout")
		}
		return 42, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestReadStopsOnPermanentError(t *testing.T) {
	missing := errors.New("not found")
	calls := 0
	_, err := Read(context.Background(), fast, func(context.Context) (int, error) {
		calls++
		return 0, missing
	}, func(err error) bool { return errors.Is(err, missing) })
	require.ErrorIs(t, err, missing)
	assert.Equal(t, 1, calls)
}

func TestReadGivesUpAfterMaxTries(t *testing.T) {
	calls := 0
	_, err := Read(context.Background(), fast, func(context.Context) (string, error) {
		calls++
		return "", errors.New("connection reset")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}
