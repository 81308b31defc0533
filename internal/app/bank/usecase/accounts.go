package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
)

// AccountService 帳戶 CRUD；建立後不會修改 Amount (那是 TransactionCore 的事)
type AccountService struct {
	accounts   AccountRepository
	users      UserRepository
	logger     *zap.Logger
	retry      RetryConfig
	bcryptCost int
	now        func() time.Time
}

// NewAccountService 建立帳戶服務，bcryptCost 為 0 時使用 bcrypt.DefaultCost
func NewAccountService(accounts AccountRepository, users UserRepository, logger *zap.Logger, retry RetryConfig, bcryptCost int) *AccountService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		accounts:   accounts,
		users:      users,
		logger:     logger,
		retry:      retry.withDefaults(),
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// List 列出所有帳戶
func (s *AccountService) List(ctx context.Context) ([]*domain.Account, error) {
	return s.accounts.List(ctx)
}

// ListByOwner 列出使用者名下帳戶，使用者沒有帳戶時回傳空陣列
func (s *AccountService) ListByOwner(ctx context.Context, userName string) ([]*domain.Account, error) {
	return s.accounts.ListByOwner(ctx, userName)
}

// Get 取得使用者名下的帳戶，帳戶不屬於該使用者視同不存在
func (s *AccountService) Get(ctx context.Context, userName, id string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.OwnerUserName != userName {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

// Balance 查詢餘額
func (s *AccountService) Balance(ctx context.Context, userName, id string) (decimal.Decimal, error) {
	account, err := s.Get(ctx, userName, id)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Amount, nil
}

// Create 建立帳戶
//
// 參數:
//
//	account: ID 為空時自動產生；AccountNumber、OwnerUserName、Pin 必填；Amount 為開戶金額，不可為負
//
// 回傳:
//
//	*domain.Account: 建立後的帳戶 (不含 Pin)
//	error: 欄位缺漏 (InvalidData)、使用者不存在 (NotFound)、ID 或帳號重複 (Duplicate)
func (s *AccountService) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if account == nil {
		return nil, domain.InvalidData("account is required")
	}
	next := account.Clone()
	next.AccountNumber = strings.TrimSpace(next.AccountNumber)
	if next.AccountNumber == "" {
		return nil, domain.InvalidData("accountNumber is required")
	}
	if next.OwnerUserName == "" {
		return nil, domain.InvalidData("ownerUserName is required")
	}
	if next.Pin == "" {
		return nil, domain.InvalidData("pin is required")
	}
	if err := domain.ValidateBalance(next.Amount); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByUserName(ctx, next.OwnerUserName); err != nil {
		return nil, err
	}
	if next.ID == "" {
		next.ID = uuid.NewString()
	}

	hash, err := domain.HashPin(next.Pin, s.bcryptCost)
	if err != nil {
		return nil, domain.InvalidData("pin cannot be hashed: %v", err)
	}
	next.PinHash = hash
	next.Pin = ""
	now := s.now().UTC()
	next.Version = 1
	next.CreatedAt = now
	next.UpdatedAt = now

	created, err := s.accounts.Create(ctx, next)
	if err != nil {
		return nil, err
	}
	s.logger.Info("account created", zap.String("account_id", created.ID), zap.String("owner", created.OwnerUserName))
	return created, nil
}

// Update 更新帳戶資料 (帳號、擁有者、密碼)
//
// Amount 不能在這裡修改：有帶且與目前餘額不同時回傳 InvalidData
func (s *AccountService) Update(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if account == nil || account.ID == "" {
		return nil, domain.InvalidData("account id is required")
	}
	var pinHash string
	if account.Pin != "" {
		hash, err := domain.HashPin(account.Pin, s.bcryptCost)
		if err != nil {
			return nil, domain.InvalidData("pin cannot be hashed: %v", err)
		}
		pinHash = hash
	}
	if !account.Amount.IsZero() {
		if err := domain.ValidateBalance(account.Amount); err != nil {
			return nil, err
		}
	}
	if account.OwnerUserName != "" {
		if _, err := s.users.GetByUserName(ctx, account.OwnerUserName); err != nil {
			return nil, err
		}
	}

	var result *domain.Account
	err := retryOnConflict(ctx, s.retry, s.retry.MaxAttempts, nil, func(ctx context.Context) error {
		current, err := s.accounts.GetByID(ctx, account.ID)
		if err != nil {
			return err
		}
		if !account.Amount.IsZero() && !account.Amount.Equal(current.Amount) {
			return domain.InvalidData("amount can only change through withdraw, deposit or transfer")
		}
		next := current.Clone()
		if number := strings.TrimSpace(account.AccountNumber); number != "" {
			next.AccountNumber = number
		}
		if account.OwnerUserName != "" {
			next.OwnerUserName = account.OwnerUserName
		}
		if pinHash != "" {
			next.PinHash = pinHash
		}
		updated, err := s.accounts.ConditionalUpdate(ctx, current.Version, next)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete 刪除使用者名下帳戶，以版本條件刪除，不會與進行中的交易交錯
func (s *AccountService) Delete(ctx context.Context, userName, id string) (*domain.Account, error) {
	var deleted *domain.Account
	err := retryOnConflict(ctx, s.retry, s.retry.MaxAttempts, nil, func(ctx context.Context) error {
		current, err := s.Get(ctx, userName, id)
		if err != nil {
			return err
		}
		if err := s.accounts.ConditionalDelete(ctx, id, current.Version); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("account deleted", zap.String("account_id", id), zap.String("owner", userName))
	return deleted, nil
}
