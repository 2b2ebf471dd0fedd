package db

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeTx struct {
	err   error
	calls int
}

func (f *fakeTx) Rollback(_ context.Context) error {
	f.calls++
	return f.err
}

func TestRollback(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantLog bool
	}{
		{"rolled back", nil, false},
		{"already committed", pgx.ErrTxClosed, false},
		{"rollback failed", errors.New("conn reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			db := &DB{logger: &logger}
			tx := &fakeTx{err: tt.err}

			db.rollback(context.Background(), tx)

			assert.Equal(t, 1, tx.calls)
			if tt.wantLog {
				assert.Contains(t, buf.String(), "failed to rollback transaction")
				assert.Contains(t, buf.String(), "conn reset")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestRollback_NilLogger(t *testing.T) {
	db := &DB{}
	assert.NotPanics(t, func() {
		db.rollback(context.Background(), &fakeTx{err: errors.New("conn reset")})
	})
}
