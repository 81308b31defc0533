package usecase_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/out/memory"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
)

func newAccountService(t *testing.T) (*usecase.AccountService, *memory.AccountStore) {
	t.Helper()
	accounts, err := memory.NewAccountStore()
	require.NoError(t, err)
	users := memory.NewUserStore()
	_, err = users.Create(context.Background(), &domain.User{ID: "u1", UserName: "alice"})
	require.NoError(t, err)
	_, err = users.Create(context.Background(), &domain.User{ID: "u2", UserName: "bob"})
	require.NoError(t, err)
	return usecase.NewAccountService(accounts, users, nil, usecase.RetryConfig{}, bcrypt.MinCost), accounts
}

func TestAccountService_Create(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)

	created, err := svc.Create(ctx, &domain.Account{
		AccountNumber: " ACC1 ",
		OwnerUserName: "alice",
		Pin:           "1234",
		Amount:        amount("25.5"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ACC1", created.AccountNumber)
	assert.Empty(t, created.Pin)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, "25.5", created.Amount.String())

	stored, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NoError(t, stored.CheckPin("1234"))

	_, err = svc.Create(ctx, &domain.Account{AccountNumber: "ACC1", OwnerUserName: "alice", Pin: "1"})
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
	assert.Equal(t, domain.KindDuplicate, domain.KindOf(err))
}

func TestAccountService_CreateRejects(t *testing.T) {
	tests := []struct {
		name    string
		account *domain.Account
		kind    domain.ResultKind
	}{
		{"nil", nil, domain.KindInvalidData},
		{"missing number", &domain.Account{OwnerUserName: "alice", Pin: "1"}, domain.KindInvalidData},
		{"missing owner", &domain.Account{AccountNumber: "A", Pin: "1"}, domain.KindInvalidData},
		{"missing pin", &domain.Account{AccountNumber: "A", OwnerUserName: "alice"}, domain.KindInvalidData},
		{"negative opening amount", &domain.Account{AccountNumber: "A", OwnerUserName: "alice", Pin: "1", Amount: amount("-1")}, domain.KindInvalidData},
		{"too precise", &domain.Account{AccountNumber: "A", OwnerUserName: "alice", Pin: "1", Amount: amount("1.23456")}, domain.KindInvalidData},
		{"opening amount 1e17", &domain.Account{AccountNumber: "A", OwnerUserName: "alice", Pin: "1", Amount: amount("100000000000000000")}, domain.KindInvalidData},
		{"opening amount huge exponent", &domain.Account{AccountNumber: "A", OwnerUserName: "alice", Pin: "1", Amount: amount("1e20000000")}, domain.KindInvalidData},
		{"unknown owner", &domain.Account{AccountNumber: "A", OwnerUserName: "carol", Pin: "1"}, domain.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newAccountService(t)
			_, err := svc.Create(context.Background(), tt.account)
			assert.Equal(t, tt.kind, domain.KindOf(err))
		})
	}
}

func TestAccountService_GetChecksOwner(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccountService(t)
	created, err := svc.Create(ctx, &domain.Account{ID: "a1", AccountNumber: "ACC1", OwnerUserName: "alice", Pin: "1234", Amount: amount("10")})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACC1", got.AccountNumber)

	_, err = svc.Get(ctx, "bob", created.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	first, err := svc.Balance(ctx, "alice", "a1")
	require.NoError(t, err)
	second, err := svc.Balance(ctx, "alice", "a1")
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.Equal(t, "10", first.String())

	owned, err := svc.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, owned, 1)
	owned, err = svc.ListByOwner(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestAccountService_Update(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)
	_, err := svc.Create(ctx, &domain.Account{ID: "a1", AccountNumber: "ACC1", OwnerUserName: "alice", Pin: "1234", Amount: amount("10")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, &domain.Account{ID: "a1", AccountNumber: "ACC9", OwnerUserName: "bob", Pin: "4321"})
	require.NoError(t, err)
	assert.Equal(t, "ACC9", updated.AccountNumber)
	assert.Equal(t, "bob", updated.OwnerUserName)
	assert.Equal(t, "10", updated.Amount.String())
	assert.Equal(t, int64(2), updated.Version)

	stored, err := store.GetByAccountNumber(ctx, "ACC9")
	require.NoError(t, err)
	assert.NoError(t, stored.CheckPin("4321"))

	// 同樣的金額可以帶，不同的金額不行
	_, err = svc.Update(ctx, &domain.Account{ID: "a1", Amount: amount("10")})
	assert.NoError(t, err)
	_, err = svc.Update(ctx, &domain.Account{ID: "a1", Amount: amount("1000")})
	assert.Equal(t, domain.KindInvalidData, domain.KindOf(err))

	_, err = svc.Update(ctx, &domain.Account{ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = svc.Update(ctx, &domain.Account{ID: "a1", OwnerUserName: "carol"})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestAccountService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)
	_, err := svc.Create(ctx, &domain.Account{ID: "a1", AccountNumber: "ACC1", OwnerUserName: "alice", Pin: "1234"})
	require.NoError(t, err)

	_, err = svc.Delete(ctx, "bob", "a1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	deleted, err := svc.Delete(ctx, "alice", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", deleted.ID)

	_, err = store.GetByID(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = store.GetByAccountNumber(ctx, "ACC1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountService_CreatedAccountIsUsableByCore(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)
	_, err := svc.Create(ctx, &domain.Account{ID: "a1", AccountNumber: "ACC1", OwnerUserName: "alice", Pin: "1234", Amount: amount("50")})
	require.NoError(t, err)

	core := usecase.NewTransactionCore(store, nil, nil, fastRetry)
	account, err := core.WithdrawAmount(ctx, domain.WithdrawRequest{AccountID: "a1", Pin: "1234", Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	assert.Equal(t, "30", account.Amount.String())
}
