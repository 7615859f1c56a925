package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	runs      int
	readOnlys int
}

func (m *fakeManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.runs++
	return fn(ctx)
}

type fakeReadOnly struct{ fakeManager }

func (m *fakeReadOnly) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	m.readOnlys++
	return fn(ctx)
}

func TestRun(t *testing.T) {
	m := &fakeManager{}

	v, err := Run(context.Background(), m, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	boom := errors.New("boom")
	v, err = Run(context.Background(), m, func(context.Context) (int, error) { return 3, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, v)
	assert.Equal(t, 2, m.runs)
}

func TestRead(t *testing.T) {
	t.Run("uses read-only mode when available", func(t *testing.T) {
		m := &fakeReadOnly{}
		v, err := Read(context.Background(), m, func(context.Context) (string, error) { return "ok", nil })
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 1, m.readOnlys)
		assert.Zero(t, m.runs)
	})

	t.Run("falls back to a regular unit", func(t *testing.T) {
		m := &fakeManager{}
		_, err := Read(context.Background(), m, func(context.Context) (string, error) { return "", nil })
		require.NoError(t, err)
		assert.Equal(t, 1, m.runs)
	})
}
