package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(ErrAccountNotFound))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("source account: %w", ErrAccountNotFound)))
	assert.Equal(t, KindDuplicate, KindOf(ErrUserAlreadyExists))
	assert.Equal(t, KindDataStoreError, KindOf(ErrContention))
}

func TestStoreError(t *testing.T) {
	assert.NoError(t, StoreError(nil, "load account"))

	cause := errors.New("connection refused")
	err := StoreError(cause, "load account %s", "a1")
	assert.Equal(t, KindDataStoreError, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "load account a1: connection refused", err.Error())

	// 已分類的錯誤不會被降級
	assert.Same(t, ErrAccountNotFound, StoreError(ErrAccountNotFound, "load account"))
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "internal error", PublicMessage(errors.New("pq: password authentication failed")))
	assert.Equal(t, "account not found", PublicMessage(ErrAccountNotFound))
	assert.Equal(t, "destination account: account not found",
		PublicMessage(fmt.Errorf("destination account: %w", ErrAccountNotFound)))

	// DataStoreError 不帶出底層原因
	err := StoreError(errors.New("dial tcp 10.0.0.5:3306: i/o timeout"), "load account")
	assert.Equal(t, "load account", PublicMessage(err))
}

func TestResultKind_String(t *testing.T) {
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "invalid_data", KindInvalidData.String())
	assert.Equal(t, "data_store_error", KindDataStoreError.String())
	assert.Equal(t, "duplicate", KindDuplicate.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
