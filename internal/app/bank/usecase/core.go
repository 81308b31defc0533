package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/pkg/metrics"
)

const (
	opWithdraw     = "withdraw"
	opDeposit      = "deposit"
	opTransfer     = "transfer"
	opCompensation = "compensation"
)

// CoreConfig 交易核心設定
type CoreConfig struct {
	RetryConfig `yaml:",inline"`
	// CompensationTimeout 補償 (退回扣款) 的時間上限，不受呼叫端 deadline 影響
	CompensationTimeout time.Duration `yaml:"compensationTimeout"`
	// JournalTimeout 寫入帳務紀錄的時間上限，同樣脫離呼叫端的取消
	JournalTimeout time.Duration `yaml:"journalTimeout"`
	// SingleRecordTransfers 即使儲存層支援 PairUpdater，轉帳仍走先扣款再入帳 (含補償) 的流程
	SingleRecordTransfers bool `yaml:"singleRecordTransfers"`
}

// TransactionCore 帳戶交易核心：唯一可以修改帳戶餘額的地方
//
// 每個操作都是 讀取-檢查-條件寫入 (CAS)，版本衝突時整個循環重試；
// 轉帳在儲存層支援 PairUpdater 時以單一交易提交兩筆，否則先扣款再入帳，入帳失敗就補償。
// 內建的記憶體與 SQL 儲存層都支援 PairUpdater，要走後者需設定 SingleRecordTransfers
type TransactionCore struct {
	accounts AccountRepository
	journal  Journal
	logger   *zap.Logger
	cfg      CoreConfig
	tracer   trace.Tracer
}

// NewTransactionCore 建立交易核心
//
// 參數:
//
//	accounts: 帳戶儲存層
//	journal: 已提交異動的紀錄，可為 nil
//	logger: 日誌
//	cfg: 重試與補償設定，零值使用預設
func NewTransactionCore(accounts AccountRepository, journal Journal, logger *zap.Logger, cfg CoreConfig) *TransactionCore {
	cfg.RetryConfig = cfg.RetryConfig.withDefaults()
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = 10 * time.Second
	}
	if cfg.JournalTimeout <= 0 {
		cfg.JournalTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionCore{
		accounts: accounts,
		journal:  journal,
		logger:   logger,
		cfg:      cfg,
		tracer:   otel.Tracer("github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"),
	}
}

// WithdrawAmount 提款
//
// 回傳:
//
//	*domain.Account: 提款後的帳戶
//	error: 帳戶不存在 (NotFound)、金額不合法/密碼錯誤/餘額不足 (InvalidData)、儲存層錯誤 (DataStoreError)
func (c *TransactionCore) WithdrawAmount(ctx context.Context, req domain.WithdrawRequest) (*domain.Account, error) {
	ctx, span := c.tracer.Start(ctx, "TransactionCore.WithdrawAmount", trace.WithAttributes(
		attribute.String("account.id", req.AccountID),
	))
	defer span.End()

	var result *domain.Account
	err := c.observe(span, opWithdraw, func() error {
		if err := domain.ValidateAmount(req.Amount); err != nil {
			return err
		}
		var verifiedHash string
		return c.retry(ctx, opWithdraw, func(ctx context.Context) error {
			account, err := c.accounts.GetByID(ctx, req.AccountID)
			if err != nil {
				return err
			}
			// 雜湊沒變就不用再跑一次 bcrypt
			if account.PinHash != verifiedHash {
				if err := account.CheckPin(req.Pin); err != nil {
					return err
				}
				verifiedHash = account.PinHash
			}
			next := account.Clone()
			if err := next.Withdraw(req.Amount); err != nil {
				return err
			}
			updated, err := c.accounts.ConditionalUpdate(ctx, account.Version, next)
			if err != nil {
				return err
			}
			result = updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	c.record(ctx, domain.NewJournalEntry(domain.EntryTypeWithdraw, uuid.Nil, result, req.Amount))
	return result, nil
}

// DepositAmount 存款，不檢查密碼
//
// 回傳:
//
//	*domain.Account: 存款後的帳戶
//	error: 帳戶不存在 (NotFound)、金額不合法或沒有指定帳戶 (InvalidData)、儲存層錯誤 (DataStoreError)
func (c *TransactionCore) DepositAmount(ctx context.Context, req domain.DepositRequest) (*domain.Account, error) {
	ctx, span := c.tracer.Start(ctx, "TransactionCore.DepositAmount", trace.WithAttributes(
		attribute.String("account.id", req.AccountID),
		attribute.String("account.number", req.AccountNumber),
	))
	defer span.End()

	var result *domain.Account
	err := c.observe(span, opDeposit, func() error {
		if err := domain.ValidateAmount(req.Amount); err != nil {
			return err
		}
		if req.AccountNumber == "" && req.AccountID == "" {
			return domain.ErrAccountReferenceMissing
		}
		return c.retry(ctx, opDeposit, func(ctx context.Context) error {
			account, err := c.resolveDepositTarget(ctx, req)
			if err != nil {
				return err
			}
			next := account.Clone()
			if err := next.Deposit(req.Amount); err != nil {
				return err
			}
			updated, err := c.accounts.ConditionalUpdate(ctx, account.Version, next)
			if err != nil {
				return err
			}
			result = updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	c.record(ctx, domain.NewJournalEntry(domain.EntryTypeDeposit, uuid.Nil, result, req.Amount))
	return result, nil
}

func (c *TransactionCore) resolveDepositTarget(ctx context.Context, req domain.DepositRequest) (*domain.Account, error) {
	if req.AccountNumber != "" {
		return c.accounts.GetByAccountNumber(ctx, req.AccountNumber)
	}
	return c.accounts.GetByID(ctx, req.AccountID)
}

// TransferAmount 轉帳，回傳轉帳後的轉出帳戶
//
// 回傳:
//
//	*domain.Account: 轉帳後的轉出帳戶
//	error: 任一帳戶不存在 (NotFound)；密碼錯誤、金額不合法、同一帳戶、餘額不足 (InvalidData)；
//	       重試耗盡或儲存層錯誤 (DataStoreError)
func (c *TransactionCore) TransferAmount(ctx context.Context, req domain.TransferRequest) (*domain.Account, error) {
	transferID := uuid.New()
	ctx, span := c.tracer.Start(ctx, "TransactionCore.TransferAmount", trace.WithAttributes(
		attribute.String("transfer.id", transferID.String()),
		attribute.String("account.id", req.AccountID),
	))
	defer span.End()

	var result *domain.Account
	err := c.observe(span, opTransfer, func() error {
		if err := domain.ValidateAmount(req.Amount); err != nil {
			return err
		}
		if req.SourceAccountNumber == req.DestinationAccountNumber {
			return domain.ErrSameAccount
		}
		var err error
		if pair, ok := c.accounts.(PairUpdater); ok && !c.cfg.SingleRecordTransfers {
			result, err = c.transferAtomic(ctx, pair, req, transferID)
		} else {
			result, err = c.transferSaga(ctx, req, transferID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadTransferLegs 讀取轉出/轉入帳戶並檢查前置條件 (餘額在 Withdraw 時檢查)
func (c *TransactionCore) loadTransferLegs(ctx context.Context, req domain.TransferRequest, verifiedHash *string) (source, destination *domain.Account, err error) {
	source, err = c.accounts.GetByAccountNumber(ctx, req.SourceAccountNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("source account: %w", err)
	}
	destination, err = c.accounts.GetByAccountNumber(ctx, req.DestinationAccountNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("destination account: %w", err)
	}
	if source.ID == destination.ID {
		return nil, nil, domain.ErrSameAccount
	}
	if source.PinHash != *verifiedHash {
		if err := source.CheckPin(req.SourcePin); err != nil {
			return nil, nil, err
		}
		*verifiedHash = source.PinHash
	}
	return source, destination, nil
}

// transferAtomic 儲存層支援時，兩筆在同一交易內提交，不會有只寫一半的狀態
func (c *TransactionCore) transferAtomic(ctx context.Context, pair PairUpdater, req domain.TransferRequest, transferID uuid.UUID) (*domain.Account, error) {
	var debited, credited *domain.Account
	var verifiedHash string
	err := c.retry(ctx, opTransfer, func(ctx context.Context) error {
		source, destination, err := c.loadTransferLegs(ctx, req, &verifiedHash)
		if err != nil {
			return err
		}
		nextSource := source.Clone()
		if err := nextSource.Withdraw(req.Amount); err != nil {
			return err
		}
		nextDestination := destination.Clone()
		if err := nextDestination.Deposit(req.Amount); err != nil {
			return err
		}
		debited, credited, err = pair.ConditionalUpdatePair(ctx,
			VersionedAccount{Account: nextSource, ExpectedVersion: source.Version},
			VersionedAccount{Account: nextDestination, ExpectedVersion: destination.Version},
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.record(ctx,
		domain.NewJournalEntry(domain.EntryTypeTransferDebit, transferID, debited, req.Amount),
		domain.NewJournalEntry(domain.EntryTypeTransferCredit, transferID, credited, req.Amount),
	)
	return debited, nil
}

// transferSaga 儲存層只有單筆原子性時：先扣款，再入帳，入帳失敗就退回扣款
//
// 補償只對轉出帳戶加錢，不會讓任何餘額變負
func (c *TransactionCore) transferSaga(ctx context.Context, req domain.TransferRequest, transferID uuid.UUID) (*domain.Account, error) {
	var debited *domain.Account
	var destinationID string
	var verifiedHash string
	err := c.retry(ctx, opTransfer, func(ctx context.Context) error {
		source, destination, err := c.loadTransferLegs(ctx, req, &verifiedHash)
		if err != nil {
			return err
		}
		next := source.Clone()
		if err := next.Withdraw(req.Amount); err != nil {
			return err
		}
		updated, err := c.accounts.ConditionalUpdate(ctx, source.Version, next)
		if err != nil {
			return err
		}
		debited = updated
		destinationID = destination.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.record(ctx, domain.NewJournalEntry(domain.EntryTypeTransferDebit, transferID, debited, req.Amount))

	var credited *domain.Account
	err = c.retry(ctx, opTransfer, func(ctx context.Context) error {
		destination, err := c.accounts.GetByID(ctx, destinationID)
		if err != nil {
			return fmt.Errorf("destination account: %w", err)
		}
		next := destination.Clone()
		if err := next.Deposit(req.Amount); err != nil {
			return err
		}
		updated, err := c.accounts.ConditionalUpdate(ctx, destination.Version, next)
		if err != nil {
			return err
		}
		credited = updated
		return nil
	})
	if err != nil {
		return nil, c.compensate(ctx, debited, req.Amount, transferID, err)
	}
	c.record(ctx, domain.NewJournalEntry(domain.EntryTypeTransferCredit, transferID, credited, req.Amount))
	return debited, nil
}

// compensate 退回已提交的扣款
//
// 使用脫離呼叫端取消的 context，呼叫端 deadline 到了也要把扣款退回
//
// 回傳:
//
//	error: 補償成功時回傳入帳失敗的原因；補償也失敗時回傳 DataStoreError
func (c *TransactionCore) compensate(ctx context.Context, debited *domain.Account, amount decimal.Decimal, transferID uuid.UUID, cause error) error {
	c.logger.Warn("transfer credit leg failed, reversing debit",
		zap.String("transfer_id", transferID.String()),
		zap.String("account_id", debited.ID),
		zap.String("amount", amount.String()),
		zap.Error(cause),
	)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CompensationTimeout)
	defer cancel()

	var restored *domain.Account
	// 補償必須盡量成功，重試次數是一般操作的數倍
	err := retryOnConflict(cctx, c.cfg.RetryConfig, c.cfg.MaxAttempts*4, c.onConflict(opCompensation), func(ctx context.Context) error {
		source, err := c.accounts.GetByID(ctx, debited.ID)
		if err != nil {
			return err
		}
		next := source.Clone()
		if err := next.Deposit(amount); err != nil {
			return err
		}
		updated, err := c.accounts.ConditionalUpdate(ctx, source.Version, next)
		if err != nil {
			return err
		}
		restored = updated
		return nil
	})
	if err != nil {
		metrics.Compensations.WithLabelValues("failed").Inc()
		c.logger.Error("transfer compensation failed, manual reconciliation required",
			zap.String("transfer_id", transferID.String()),
			zap.String("account_id", debited.ID),
			zap.String("amount", amount.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return domain.StoreError(errors.Join(cause, err), "transfer failed and could not be reversed")
	}

	metrics.Compensations.WithLabelValues("ok").Inc()
	c.record(cctx, domain.NewJournalEntry(domain.EntryTypeCompensation, transferID, restored, amount))
	if domain.KindOf(cause) == domain.KindUnknown {
		return domain.StoreError(cause, "transfer credit leg failed")
	}
	return cause
}

func (c *TransactionCore) retry(ctx context.Context, op string, cycle func(ctx context.Context) error) error {
	return retryOnConflict(ctx, c.cfg.RetryConfig, c.cfg.MaxAttempts, c.onConflict(op), cycle)
}

func (c *TransactionCore) onConflict(op string) func(attempt int) {
	return func(attempt int) {
		metrics.CASRetries.WithLabelValues(op).Inc()
		c.logger.Debug("version conflict, retrying", zap.String("op", op), zap.Int("attempt", attempt))
	}
}

// observe 記錄操作耗時、結果分類與 span 狀態
func (c *TransactionCore) observe(span trace.Span, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.Operations.WithLabelValues(op, "ok").Inc()
		return nil
	}
	kind := domain.KindOf(err)
	metrics.Operations.WithLabelValues(op, kind.String()).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, kind.String())
	if kind == domain.KindDataStoreError || kind == domain.KindUnknown {
		c.logger.Error("transaction failed", zap.String("op", op), zap.Error(err))
	} else {
		c.logger.Debug("transaction rejected", zap.String("op", op), zap.Error(err))
	}
	return err
}

// record 寫入帳務紀錄；已經提交的異動不會因紀錄失敗而回滾，只記 log
//
// 異動已經提交，呼叫端斷線或 deadline 到了也要寫入，所以使用脫離取消的 context
func (c *TransactionCore) record(ctx context.Context, entries ...domain.JournalEntry) {
	if c.journal == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.JournalTimeout)
	defer cancel()
	if err := c.journal.Record(rctx, entries...); err != nil {
		c.logger.Warn("failed to record journal entries", zap.Int("entries", len(entries)), zap.Error(err))
	}
}
