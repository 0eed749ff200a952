package reservations

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantIs   error
	}{
		{name: "serialization failure retries", err: &pgconn.PgError{Code: "40001", Message: "could not serialize access"}, wantKind: KindConflict, wantIs: ErrConflict},
		{name: "deadlock retries", err: &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}, wantKind: KindConflict, wantIs: ErrConflict},
		{name: "lock timeout retries", err: &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}, wantKind: KindConflict, wantIs: ErrConflict},
		{name: "unique violation retries", err: &pgconn.PgError{Code: "23505", Message: "duplicate key value"}, wantKind: KindConflict, wantIs: ErrConflict},
		{name: "wrapped pg error", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40001"}), wantKind: KindConflict, wantIs: ErrConflict},
		{name: "check violation is internal", err: &pgconn.PgError{Code: "23514", Message: "violates check constraint"}, wantKind: KindInternal},
		{name: "driver failure is unavailable", err: errors.New("dial tcp: connection refused"), wantKind: KindUnavailable, wantIs: ErrUnavailable},
		{name: "domain error passes through", err: ErrSeatConflict, wantKind: KindSeatConflict, wantIs: ErrSeatConflict},
		{name: "wrapped domain error passes through", err: wrapf(ErrInvalidQuantity, "slot capacity is %d", 2), wantKind: KindInvalid, wantIs: ErrInvalidQuantity},
		{name: "cancellation passes through", err: context.Canceled, wantKind: KindInternal, wantIs: context.Canceled},
		{name: "deadline passes through", err: context.DeadlineExceeded, wantKind: KindInternal, wantIs: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Error(t, got)
			assert.Equal(t, tt.wantKind, Kind(got))
			if tt.wantIs != nil {
				assert.ErrorIs(t, got, tt.wantIs)
			}
		})
	}

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, classify(nil))
	})

	t.Run("unknown pg code keeps driver error", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
		got := classify(pgErr)
		var target *pgconn.PgError
		assert.True(t, errors.As(got, &target))
		assert.Equal(t, "42P01", target.Code)
		assert.NotErrorIs(t, got, ErrConflict)
	})
}
