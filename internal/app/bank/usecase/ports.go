package usecase

import (
	"context"
	"errors"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
)

// AccountRepository 帳戶儲存層介面
//
// 回傳的 *domain.Account 一律是副本；找不到時回傳 domain.ErrAccountNotFound，
// 條件更新/刪除版本不符時回傳 domain.ErrVersionConflict
type AccountRepository interface {
	// GetByID 以帳戶 ID 查詢
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetByAccountNumber 以帳號查詢
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	// List 列出所有帳戶
	List(ctx context.Context) ([]*domain.Account, error)
	// ListByOwner 列出使用者名下帳戶
	ListByOwner(ctx context.Context, userName string) ([]*domain.Account, error)
	// Create 新增帳戶，ID 或帳號重複回傳 domain.ErrAccountAlreadyExists
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)
	// ConditionalUpdate 只有在儲存的版本等於 expectedVersion 時才寫入，成功後版本加一
	ConditionalUpdate(ctx context.Context, expectedVersion int64, account *domain.Account) (*domain.Account, error)
	// ConditionalDelete 只有在儲存的版本等於 expectedVersion 時才刪除
	ConditionalDelete(ctx context.Context, id string, expectedVersion int64) error
}

// VersionedAccount 條件更新的一筆目標：新狀態與預期的舊版本
type VersionedAccount struct {
	Account         *domain.Account
	ExpectedVersion int64
}

// PairUpdater 可以在同一個儲存層交易內條件更新兩個帳戶的 Repository
//
// 實作必須依 domain.LockOrder 的順序上鎖，任何一筆版本不符時兩筆都不寫入
type PairUpdater interface {
	ConditionalUpdatePair(ctx context.Context, a, b VersionedAccount) (*domain.Account, *domain.Account, error)
}

// UserRepository 使用者儲存層介面
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUserName(ctx context.Context, userName string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	// Create 使用者名稱或 ID 重複回傳 domain.ErrUserAlreadyExists
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}

// Journal 已提交帳務異動的紀錄 (WAL 檔案、Kafka...)
type Journal interface {
	Record(ctx context.Context, entries ...domain.JournalEntry) error
}

// Journals 將紀錄寫到多個 Journal，任何一個失敗不影響其他
type Journals []Journal

func (js Journals) Record(ctx context.Context, entries ...domain.JournalEntry) error {
	var errs []error
	for _, j := range js {
		if err := j.Record(ctx, entries...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
