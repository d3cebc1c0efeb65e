package royalty_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ritera/royalty-engine/royalty"
)

func TestErrorHelpers(t *testing.T) {
	partial := &royalty.ReconciliationError{
		Operation: "record_sale",
		AuthorID:  "a1",
		Err:       royalty.ErrConcurrentModification,
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
		client    bool
		notFound  bool
	}{
		{"concurrent modification", royalty.ErrConcurrentModification, true, false, false},
		{"partial write over a conflict", partial, false, false, false},
		{"invalid input", &royalty.InvalidInputError{Field: "copies", Reason: "must be positive"}, false, true, false},
		{"not found", &royalty.NotFoundError{Kind: "book", ID: "b1"}, false, false, true},
		{"storage", &royalty.StorageError{Op: "save", Err: errors.New("disk full")}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, royalty.IsRetryable(tt.err))
			assert.Equal(t, tt.client, royalty.IsClientError(tt.err))
			assert.Equal(t, tt.notFound, royalty.IsNotFound(tt.err))
		})
	}

	assert.ErrorIs(t, partial, royalty.ErrReconciliationNeeded)
}

func TestWithdrawalStatus_Valid(t *testing.T) {
	for _, s := range []royalty.WithdrawalStatus{royalty.WithdrawalPending, royalty.WithdrawalCompleted, royalty.WithdrawalRejected} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, royalty.WithdrawalStatus("paid").Valid())
	assert.False(t, royalty.WithdrawalStatus("").Valid())
}
