package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/out/memory"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
)

var fastRetry = usecase.CoreConfig{
	RetryConfig: usecase.RetryConfig{
		MaxAttempts:  10,
		RetryBackoff: time.Millisecond,
		MaxBackoff:   5 * time.Millisecond,
	},
	CompensationTimeout: 2 * time.Second,
}

// recordingJournal 記下所有寫入的紀錄
type recordingJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
}

func (j *recordingJournal) Record(_ context.Context, entries ...domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entries...)
	return nil
}

func (j *recordingJournal) types() []domain.EntryType {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.EntryType, len(j.entries))
	for i, e := range j.entries {
		out[i] = e.Type
	}
	return out
}

func newAccount(t *testing.T, id, number, pin, amount string) *domain.Account {
	t.Helper()
	hash, err := domain.HashPin(pin, bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.Account{
		ID:            id,
		AccountNumber: number,
		OwnerUserName: "alice",
		PinHash:       hash,
		Amount:        decimal.RequireFromString(amount),
		Version:       1,
	}
}

func newCore(t *testing.T, accounts ...*domain.Account) (*usecase.TransactionCore, *memory.AccountStore, *recordingJournal) {
	t.Helper()
	store, err := memory.NewAccountStore(accounts...)
	require.NoError(t, err)
	journal := &recordingJournal{}
	return usecase.NewTransactionCore(store, journal, nil, fastRetry), store, journal
}

func balanceOf(t *testing.T, repo usecase.AccountRepository, id string) string {
	t.Helper()
	account, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return account.Amount.String()
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTransactionCore_WorkedExample(t *testing.T) {
	ctx := context.Background()
	core, store, journal := newCore(t,
		newAccount(t, "1", "ACC1", "1234", "100"),
		newAccount(t, "2", "ACC2", "5678", "0"),
	)

	account, err := core.WithdrawAmount(ctx, domain.WithdrawRequest{AccountID: "1", Pin: "1234", Amount: amount("40")})
	require.NoError(t, err)
	assert.Equal(t, "60", account.Amount.String())

	_, err = core.WithdrawAmount(ctx, domain.WithdrawRequest{AccountID: "1", Pin: "9999", Amount: amount("10")})
	assert.ErrorIs(t, err, domain.ErrInvalidPin)
	assert.Equal(t, domain.KindInvalidData, domain.KindOf(err))
	assert.Equal(t, "60", balanceOf(t, store, "1"))

	source, err := core.TransferAmount(ctx, domain.TransferRequest{
		AccountID:                "1",
		SourceAccountNumber:      "ACC1",
		SourcePin:                "1234",
		DestinationAccountNumber: "ACC2",
		Amount:                   amount("60"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1", source.ID)
	assert.Equal(t, "0", source.Amount.String())
	assert.Equal(t, "60", balanceOf(t, store, "2"))

	_, err = core.WithdrawAmount(ctx, domain.WithdrawRequest{AccountID: "1", Pin: "1234", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, "0", balanceOf(t, store, "1"))

	assert.Equal(t, []domain.EntryType{
		domain.EntryTypeWithdraw,
		domain.EntryTypeTransferDebit,
		domain.EntryTypeTransferCredit,
	}, journal.types())
}

func TestTransactionCore_WithdrawAmount(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.WithdrawRequest
		wantErr error
		kind    domain.ResultKind
	}{
		{"unknown account", domain.WithdrawRequest{AccountID: "x", Pin: "1234", Amount: amount("1")}, domain.ErrAccountNotFound, domain.KindNotFound},
		{"wrong pin", domain.WithdrawRequest{AccountID: "1", Pin: "0000", Amount: amount("1")}, domain.ErrInvalidPin, domain.KindInvalidData},
		{"empty pin", domain.WithdrawRequest{AccountID: "1", Amount: amount("1")}, domain.ErrInvalidPin, domain.KindInvalidData},
		{"zero amount", domain.WithdrawRequest{AccountID: "1", Pin: "1234", Amount: decimal.Zero}, domain.ErrAmountMustBePositive, domain.KindInvalidData},
		{"negative amount", domain.WithdrawRequest{AccountID: "1", Pin: "1234", Amount: amount("-5")}, domain.ErrAmountMustBePositive, domain.KindInvalidData},
		{"too precise", domain.WithdrawRequest{AccountID: "1", Pin: "1234", Amount: amount("0.00001")}, domain.ErrAmountPrecision, domain.KindInvalidData},
		{"more than balance", domain.WithdrawRequest{AccountID: "1", Pin: "1234", Amount: amount("100.0001")}, domain.ErrInsufficientBalance, domain.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, store, journal := newCore(t, newAccount(t, "1", "ACC1", "1234", "100"))

			_, err := core.WithdrawAmount(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.Equal(t, "100", balanceOf(t, store, "1"))
			assert.Empty(t, journal.types())
		})
	}
}

func TestTransactionCore_RejectsOversizedAmounts(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr error
	}{
		{"huge exponent", "1e20000000", domain.ErrAmountTooLarge},
		{"negative huge exponent", "-1e20000000", domain.ErrAmountMustBePositive},
		{"1e17", "100000000000000000", domain.ErrAmountTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			core, store, journal := newCore(t,
				newAccount(t, "1", "ACC1", "1234", "100"),
				newAccount(t, "2", "ACC2", "5678", "0"),
			)
			value := amount(tt.amount)
			start := time.Now()

			_, err := core.WithdrawAmount(ctx, domain.WithdrawRequest{AccountID: "1", Pin: "1234", Amount: value})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.KindInvalidData, domain.KindOf(err))

			_, err = core.DepositAmount(ctx, domain.DepositRequest{AccountID: "1", Amount: value})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.KindInvalidData, domain.KindOf(err))

			_, err = core.TransferAmount(ctx, domain.TransferRequest{
				SourceAccountNumber:      "ACC1",
				SourcePin:                "1234",
				DestinationAccountNumber: "ACC2",
				Amount:                   value,
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.KindInvalidData, domain.KindOf(err))

			assert.Less(t, time.Since(start), time.Second)
			assert.Equal(t, "100", balanceOf(t, store, "1"))
			assert.Equal(t, "0", balanceOf(t, store, "2"))
			assert.Empty(t, journal.types())
		})
	}
}

func TestTransactionCore_DepositBeyondMaximumBalance(t *testing.T) {
	core, store, _ := newCore(t, newAccount(t, "1", "ACC1", "1234", "9999999999999999"))

	_, err := core.DepositAmount(context.Background(), domain.DepositRequest{AccountID: "1", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrBalanceTooLarge)
	assert.Equal(t, domain.KindInvalidData, domain.KindOf(err))
	assert.Equal(t, "9999999999999999", balanceOf(t, store, "1"))
}

func TestTransactionCore_WithdrawWholeBalance(t *testing.T) {
	core, _, _ := newCore(t, newAccount(t, "1", "ACC1", "1234", "100.5"))

	account, err := core.WithdrawAmount(context.Background(), domain.WithdrawRequest{AccountID: "1", Pin: "1234", Amount: amount("100.5")})
	require.NoError(t, err)
	assert.True(t, account.Amount.IsZero())
	assert.Equal(t, int64(2), account.Version)
}

func TestTransactionCore_DepositAmount(t *testing.T) {
	ctx := context.Background()
	core, store, _ := newCore(t,
		newAccount(t, "1", "ACC1", "1234", "10"),
		newAccount(t, "2", "ACC2", "5678", "0"),
	)

	t.Run("by id without pin", func(t *testing.T) {
		account, err := core.DepositAmount(ctx, domain.DepositRequest{AccountID: "1", Amount: amount("5")})
		require.NoError(t, err)
		assert.Equal(t, "15", account.Amount.String())
	})

	t.Run("account number wins over id", func(t *testing.T) {
		account, err := core.DepositAmount(ctx, domain.DepositRequest{AccountID: "1", AccountNumber: "ACC2", Amount: amount("2.5")})
		require.NoError(t, err)
		assert.Equal(t, "2", account.ID)
		assert.Equal(t, "15", balanceOf(t, store, "1"))
		assert.Equal(t, "2.5", balanceOf(t, store, "2"))
	})

	t.Run("no reference", func(t *testing.T) {
		_, err := core.DepositAmount(ctx, domain.DepositRequest{Amount: amount("1")})
		assert.ErrorIs(t, err, domain.ErrAccountReferenceMissing)
	})

	t.Run("unknown account number", func(t *testing.T) {
		_, err := core.DepositAmount(ctx, domain.DepositRequest{AccountNumber: "NOPE", Amount: amount("1")})
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	})

	t.Run("non positive amount", func(t *testing.T) {
		_, err := core.DepositAmount(ctx, domain.DepositRequest{AccountID: "1", Amount: amount("-1")})
		assert.ErrorIs(t, err, domain.ErrAmountMustBePositive)
		assert.Equal(t, "15", balanceOf(t, store, "1"))
	})
}

func TestTransactionCore_TransferAmount_Rejections(t *testing.T) {
	valid := domain.TransferRequest{
		AccountID:                "1",
		SourceAccountNumber:      "ACC1",
		SourcePin:                "1234",
		DestinationAccountNumber: "ACC2",
		Amount:                   amount("10"),
	}
	tests := []struct {
		name    string
		mutate  func(r *domain.TransferRequest)
		wantErr error
	}{
		{"unknown source", func(r *domain.TransferRequest) { r.SourceAccountNumber = "NOPE" }, domain.ErrAccountNotFound},
		{"unknown destination", func(r *domain.TransferRequest) { r.DestinationAccountNumber = "NOPE" }, domain.ErrAccountNotFound},
		{"wrong pin", func(r *domain.TransferRequest) { r.SourcePin = "0000" }, domain.ErrInvalidPin},
		{"same account", func(r *domain.TransferRequest) { r.DestinationAccountNumber = "ACC1" }, domain.ErrSameAccount},
		{"insufficient funds", func(r *domain.TransferRequest) { r.Amount = amount("50.0001") }, domain.ErrInsufficientBalance},
		{"zero amount", func(r *domain.TransferRequest) { r.Amount = decimal.Zero }, domain.ErrAmountMustBePositive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, store, journal := newCore(t,
				newAccount(t, "1", "ACC1", "1234", "50"),
				newAccount(t, "2", "ACC2", "5678", "0"),
			)
			req := valid
			tt.mutate(&req)

			_, err := core.TransferAmount(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, "50", balanceOf(t, store, "1"))
			assert.Equal(t, "0", balanceOf(t, store, "2"))
			assert.Empty(t, journal.types())
		})
	}
}

// singleRecordRepo 隱藏 PairUpdater，讓轉帳走先扣款再入帳的流程；
// updateHook 可以在條件寫入前注入錯誤
type singleRecordRepo struct {
	usecase.AccountRepository
	updates    atomic.Int32
	updateHook func(call int32, account *domain.Account) error
	afterWrite func(account *domain.Account)
}

func (r *singleRecordRepo) ConditionalUpdate(ctx context.Context, expectedVersion int64, account *domain.Account) (*domain.Account, error) {
	call := r.updates.Add(1)
	if r.updateHook != nil {
		if err := r.updateHook(call, account); err != nil {
			return nil, err
		}
	}
	updated, err := r.AccountRepository.ConditionalUpdate(ctx, expectedVersion, account)
	if err == nil && r.afterWrite != nil {
		r.afterWrite(updated)
	}
	return updated, err
}

func newSagaCore(t *testing.T, repo *singleRecordRepo) (*usecase.TransactionCore, *recordingJournal) {
	t.Helper()
	store, err := memory.NewAccountStore(
		newAccount(t, "1", "ACC1", "1234", "100"),
		newAccount(t, "2", "ACC2", "5678", "0"),
	)
	require.NoError(t, err)
	repo.AccountRepository = store
	journal := &recordingJournal{}
	return usecase.NewTransactionCore(repo, journal, nil, fastRetry), journal
}

var transfer60 = domain.TransferRequest{
	AccountID:                "1",
	SourceAccountNumber:      "ACC1",
	SourcePin:                "1234",
	DestinationAccountNumber: "ACC2",
	Amount:                   decimal.NewFromInt(60),
}

func TestTransactionCore_TransferSaga_Success(t *testing.T) {
	repo := &singleRecordRepo{}
	core, journal := newSagaCore(t, repo)

	source, err := core.TransferAmount(context.Background(), transfer60)
	require.NoError(t, err)
	assert.Equal(t, "40", source.Amount.String())
	assert.Equal(t, "60", balanceOf(t, repo, "2"))

	require.Len(t, journal.entries, 2)
	assert.Equal(t, journal.entries[0].TransferID, journal.entries[1].TransferID)
}

func TestTransactionCore_TransferSaga_CompensatesFailedCredit(t *testing.T) {
	repo := &singleRecordRepo{
		updateHook: func(_ int32, account *domain.Account) error {
			if account.ID == "2" {
				return errors.New("disk full")
			}
			return nil
		},
	}
	core, journal := newSagaCore(t, repo)

	_, err := core.TransferAmount(context.Background(), transfer60)
	require.Error(t, err)
	assert.Equal(t, domain.KindDataStoreError, domain.KindOf(err))
	assert.Equal(t, "transfer credit leg failed", domain.PublicMessage(err))

	// 沒有錢憑空消失或產生
	assert.Equal(t, "100", balanceOf(t, repo, "1"))
	assert.Equal(t, "0", balanceOf(t, repo, "2"))
	assert.Equal(t, []domain.EntryType{domain.EntryTypeTransferDebit, domain.EntryTypeCompensation}, journal.types())
}

func TestTransactionCore_TransferSaga_KeepsCauseKind(t *testing.T) {
	repo := &singleRecordRepo{
		updateHook: func(_ int32, account *domain.Account) error {
			if account.ID == "2" {
				return domain.ErrAccountNotFound
			}
			return nil
		},
	}
	core, _ := newSagaCore(t, repo)

	_, err := core.TransferAmount(context.Background(), transfer60)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, "100", balanceOf(t, repo, "1"))
}

func TestTransactionCore_TransferSaga_CompensatesAfterDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := &singleRecordRepo{
		// 扣款提交後呼叫端就取消了
		afterWrite: func(account *domain.Account) {
			if account.ID == "1" {
				cancel()
			}
		},
	}
	core, journal := newSagaCore(t, repo)

	_, err := core.TransferAmount(ctx, transfer60)
	assert.Equal(t, domain.KindDataStoreError, domain.KindOf(err))
	assert.Equal(t, "100", balanceOf(t, repo, "1"))
	assert.Equal(t, "0", balanceOf(t, repo, "2"))
	assert.Contains(t, journal.types(), domain.EntryTypeCompensation)
}

func TestTransactionCore_TransferSaga_CompensationFails(t *testing.T) {
	repo := &singleRecordRepo{
		updateHook: func(call int32, _ *domain.Account) error {
			if call > 1 {
				return errors.New("store offline")
			}
			return nil
		},
	}
	core, _ := newSagaCore(t, repo)

	_, err := core.TransferAmount(context.Background(), transfer60)
	assert.Equal(t, domain.KindDataStoreError, domain.KindOf(err))
	assert.Equal(t, "transfer failed and could not be reversed", domain.PublicMessage(err))
}

// conflictingRepo 每次條件寫入都回報版本衝突
type conflictingRepo struct {
	usecase.AccountRepository
	attempts atomic.Int32
}

func (r *conflictingRepo) ConditionalUpdate(context.Context, int64, *domain.Account) (*domain.Account, error) {
	r.attempts.Add(1)
	return nil, domain.ErrVersionConflict
}

func TestTransactionCore_RetriesExhausted(t *testing.T) {
	store, err := memory.NewAccountStore(newAccount(t, "1", "ACC1", "1234", "100"))
	require.NoError(t, err)
	repo := &conflictingRepo{AccountRepository: store}
	cfg := fastRetry
	cfg.MaxAttempts = 3
	core := usecase.NewTransactionCore(repo, nil, nil, cfg)

	_, err = core.DepositAmount(context.Background(), domain.DepositRequest{AccountID: "1", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.Equal(t, domain.KindDataStoreError, domain.KindOf(err))
	assert.Equal(t, int32(3), repo.attempts.Load())
	assert.Equal(t, "100", balanceOf(t, store, "1"))
}

func TestTransactionCore_ConcurrentWithdrawals(t *testing.T) {
	const (
		balance     = 100
		withdrawal  = 30
		concurrency = 20
	)
	core, store, _ := newCore(t, newAccount(t, "1", "ACC1", "1234", "100"))

	var wg sync.WaitGroup
	var succeeded, insufficient, other atomic.Int32
	start := make(chan struct{})
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := core.WithdrawAmount(context.Background(), domain.WithdrawRequest{
				AccountID: "1",
				Pin:       "1234",
				Amount:    decimal.NewFromInt(withdrawal),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientBalance):
				insufficient.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(balance/withdrawal), succeeded.Load())
	assert.Equal(t, int32(concurrency-balance/withdrawal), insufficient.Load())
	assert.Zero(t, other.Load())
	assert.Equal(t, "10", balanceOf(t, store, "1"))
}

func TestTransactionCore_ConcurrentTransfersConserveMoney(t *testing.T) {
	core, store, _ := newCore(t,
		newAccount(t, "1", "ACC1", "1111", "500"),
		newAccount(t, "2", "ACC2", "2222", "500"),
	)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := domain.TransferRequest{AccountID: "1", SourceAccountNumber: "ACC1", SourcePin: "1111", DestinationAccountNumber: "ACC2", Amount: amount("7")}
			if i%2 == 1 {
				req = domain.TransferRequest{AccountID: "2", SourceAccountNumber: "ACC2", SourcePin: "2222", DestinationAccountNumber: "ACC1", Amount: amount("11")}
			}
			// 重試耗盡的失敗可以接受，只檢查總額
			_, _ = core.TransferAmount(context.Background(), req)
		}(i)
	}
	wg.Wait()

	a := decimal.RequireFromString(balanceOf(t, store, "1"))
	b := decimal.RequireFromString(balanceOf(t, store, "2"))
	assert.True(t, a.Add(b).Equal(decimal.NewFromInt(1000)), "total must be conserved, got %s + %s", a, b)
	assert.False(t, a.IsNegative())
	assert.False(t, b.IsNegative())
}

func TestJournals_RecordsToEveryJournal(t *testing.T) {
	first, second := &recordingJournal{}, &recordingJournal{}
	journals := usecase.Journals{first, second}

	entry := domain.JournalEntry{Type: domain.EntryTypeDeposit, AccountID: "1"}
	require.NoError(t, journals.Record(context.Background(), entry))

	assert.Len(t, first.entries, 1)
	assert.Len(t, second.entries, 1)
}

// ctxJournal 記下寫入時 context 的狀態
type ctxJournal struct {
	recordingJournal
	errs      []error
	deadlines []bool
}

func (j *ctxJournal) Record(ctx context.Context, entries ...domain.JournalEntry) error {
	j.mu.Lock()
	_, hasDeadline := ctx.Deadline()
	j.errs = append(j.errs, ctx.Err())
	j.deadlines = append(j.deadlines, hasDeadline)
	j.mu.Unlock()
	return j.recordingJournal.Record(ctx, entries...)
}

func TestTransactionCore_JournalOutlivesCancelledCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := memory.NewAccountStore(newAccount(t, "1", "ACC1", "1234", "100"))
	require.NoError(t, err)
	// 寫入提交後呼叫端立刻斷線
	repo := &singleRecordRepo{AccountRepository: store, afterWrite: func(*domain.Account) { cancel() }}
	journal := &ctxJournal{}
	core := usecase.NewTransactionCore(repo, journal, nil, fastRetry)

	account, err := core.DepositAmount(ctx, domain.DepositRequest{AccountID: "1", Amount: amount("5")})
	require.NoError(t, err)
	assert.Equal(t, "105", account.Amount.String())

	require.Len(t, journal.errs, 1)
	assert.NoError(t, journal.errs[0])
	assert.True(t, journal.deadlines[0], "journal writes are bounded by their own timeout")
	assert.Equal(t, []domain.EntryType{domain.EntryTypeDeposit}, journal.types())
}

// countingStore 保留記憶體儲存層的 PairUpdater，另外計算單筆條件寫入次數
type countingStore struct {
	*memory.AccountStore
	updates atomic.Int32
}

func (s *countingStore) ConditionalUpdate(ctx context.Context, expectedVersion int64, account *domain.Account) (*domain.Account, error) {
	s.updates.Add(1)
	return s.AccountStore.ConditionalUpdate(ctx, expectedVersion, account)
}

func TestTransactionCore_SingleRecordTransfers(t *testing.T) {
	for _, singleRecord := range []bool{false, true} {
		store, err := memory.NewAccountStore(
			newAccount(t, "1", "ACC1", "1234", "100"),
			newAccount(t, "2", "ACC2", "5678", "0"),
		)
		require.NoError(t, err)
		repo := &countingStore{AccountStore: store}
		cfg := fastRetry
		cfg.SingleRecordTransfers = singleRecord
		journal := &recordingJournal{}
		core := usecase.NewTransactionCore(repo, journal, nil, cfg)

		source, err := core.TransferAmount(context.Background(), transfer60)
		require.NoError(t, err)
		assert.Equal(t, "40", source.Amount.String())
		assert.Equal(t, "60", balanceOf(t, repo, "2"))
		assert.Equal(t, []domain.EntryType{domain.EntryTypeTransferDebit, domain.EntryTypeTransferCredit}, journal.types())

		if singleRecord {
			// 扣款與入帳各一次單筆條件寫入
			assert.Equal(t, int32(2), repo.updates.Load())
		} else {
			assert.Zero(t, repo.updates.Load())
		}
	}
}
