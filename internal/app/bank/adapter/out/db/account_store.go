package db

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
	"github.com/JoeShih716/go-bank-api/pkg/database"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID            string          `gorm:"primaryKey;size:36"`
	AccountNumber string          `gorm:"size:64;uniqueIndex;not null"`
	OwnerUserName string          `gorm:"size:64;index;not null"`
	PinHash       string          `gorm:"size:72;not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Version       int64           `gorm:"not null"` // 樂觀鎖版本號
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (r *sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:            r.ID,
		AccountNumber: r.AccountNumber,
		OwnerUserName: r.OwnerUserName,
		PinHash:       r.PinHash,
		Amount:        r.Amount,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromDomainAccount(a *domain.Account) *sqlAccount {
	return &sqlAccount{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		OwnerUserName: a.OwnerUserName,
		PinHash:       a.PinHash,
		Amount:        a.Amount,
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// Migrate 建立/更新資料表
func Migrate(client *database.Client) error {
	return client.DB().AutoMigrate(&sqlAccount{}, &sqlUser{})
}

// AccountStore 以 GORM 實作的帳戶儲存層 (mysql / postgres / sqlite)
type AccountStore struct {
	client *database.Client
	now    func() time.Time
}

func NewAccountStore(client *database.Client) *AccountStore {
	return &AccountStore{
		client: client,
		now:    time.Now,
	}
}

func (s *AccountStore) db(ctx context.Context) *gorm.DB {
	return s.client.DB().WithContext(ctx)
}

// GetByID 以帳戶 ID 查詢
func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByAccountNumber 以帳號查詢
func (s *AccountStore) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.first(ctx, "account_number = ?", accountNumber)
}

func (s *AccountStore) first(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var record sqlAccount
	// Find + Limit 而不用 First，找不到不是錯誤，不需要進 gorm 的錯誤 log
	res := s.db(ctx).Where(query, arg).Limit(1).Find(&record)
	if res.Error != nil {
		return nil, domain.StoreError(res.Error, "get account")
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return record.toDomain(), nil
}

// List 列出所有帳戶
func (s *AccountStore) List(ctx context.Context) ([]*domain.Account, error) {
	return s.find(s.db(ctx))
}

// ListByOwner 列出使用者名下帳戶
func (s *AccountStore) ListByOwner(ctx context.Context, userName string) ([]*domain.Account, error) {
	return s.find(s.db(ctx).Where("owner_user_name = ?", userName))
}

func (s *AccountStore) find(tx *gorm.DB) ([]*domain.Account, error) {
	var records []sqlAccount
	if err := tx.Order("id").Find(&records).Error; err != nil {
		return nil, domain.StoreError(err, "list accounts")
	}
	accounts := make([]*domain.Account, 0, len(records))
	for i := range records {
		accounts = append(accounts, records[i].toDomain())
	}
	return accounts, nil
}

// Create 新增帳戶
func (s *AccountStore) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	var count int64
	err := s.db(ctx).Model(&sqlAccount{}).
		Where("id = ? OR account_number = ?", account.ID, account.AccountNumber).
		Count(&count).Error
	if err != nil {
		return nil, domain.StoreError(err, "create account")
	}
	if count > 0 {
		return nil, domain.ErrAccountAlreadyExists
	}

	record := fromDomainAccount(account)
	if record.Version == 0 {
		record.Version = 1
	}
	// 唯一索引仍是最後防線 (兩個請求同時通過上面的檢查)
	if err := s.db(ctx).Create(record).Error; err != nil {
		return nil, translate(err, domain.ErrAccountAlreadyExists, "create account")
	}
	return record.toDomain(), nil
}

// ConditionalUpdate 以 version 欄位做 CAS：UPDATE ... WHERE id = ? AND version = ?
func (s *AccountStore) ConditionalUpdate(ctx context.Context, expectedVersion int64, account *domain.Account) (*domain.Account, error) {
	now := s.now().UTC()
	res := s.db(ctx).Model(&sqlAccount{}).
		Where("id = ? AND version = ?", account.ID, expectedVersion).
		Updates(updateColumns(account, expectedVersion+1, now))
	if res.Error != nil {
		return nil, translate(res.Error, domain.ErrAccountAlreadyExists, "update account")
	}
	if res.RowsAffected == 0 {
		return nil, s.conflictOrMissing(ctx, account.ID)
	}

	updated := account.Clone()
	updated.Pin = ""
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = now
	return updated, nil
}

// ConditionalUpdatePair 在同一個資料庫交易內更新兩個帳戶
//
// 依 domain.LockOrder 逐筆 SELECT ... FOR UPDATE，兩筆方向相反的轉帳不會互相等待對方的鎖
func (s *AccountStore) ConditionalUpdatePair(ctx context.Context, a, b usecase.VersionedAccount) (*domain.Account, *domain.Account, error) {
	targets := map[string]usecase.VersionedAccount{
		a.Account.ID: a,
		b.Account.ID: b,
	}
	first, second := domain.LockOrder(a.Account.ID, b.Account.ID)
	now := s.now().UTC()

	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range []string{first, second} {
			var locked sqlAccount
			res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", id).
				Limit(1).
				Find(&locked)
			if res.Error != nil {
				return domain.StoreError(res.Error, "lock account")
			}
			if res.RowsAffected == 0 {
				return domain.ErrAccountNotFound
			}
			if locked.Version != targets[id].ExpectedVersion {
				return domain.ErrVersionConflict
			}
		}

		for _, id := range []string{first, second} {
			target := targets[id]
			res := tx.Model(&sqlAccount{}).
				Where("id = ? AND version = ?", id, target.ExpectedVersion).
				Updates(updateColumns(target.Account, target.ExpectedVersion+1, now))
			if res.Error != nil {
				return translate(res.Error, domain.ErrAccountAlreadyExists, "update account")
			}
			if res.RowsAffected == 0 {
				return domain.ErrVersionConflict
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, domain.StoreError(err, "update accounts")
	}

	updatedA := a.Account.Clone()
	updatedA.Pin = ""
	updatedA.Version = a.ExpectedVersion + 1
	updatedA.UpdatedAt = now
	updatedB := b.Account.Clone()
	updatedB.Pin = ""
	updatedB.Version = b.ExpectedVersion + 1
	updatedB.UpdatedAt = now
	return updatedA, updatedB, nil
}

// ConditionalDelete 版本相符才刪除
func (s *AccountStore) ConditionalDelete(ctx context.Context, id string, expectedVersion int64) error {
	res := s.db(ctx).Where("id = ? AND version = ?", id, expectedVersion).Delete(&sqlAccount{})
	if res.Error != nil {
		return domain.StoreError(res.Error, "delete account")
	}
	if res.RowsAffected == 0 {
		return s.conflictOrMissing(ctx, id)
	}
	return nil
}

// conflictOrMissing 條件寫入沒有影響任何列時，區分是帳戶不存在還是版本已變
func (s *AccountStore) conflictOrMissing(ctx context.Context, id string) error {
	var count int64
	if err := s.db(ctx).Model(&sqlAccount{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return domain.StoreError(err, "check account")
	}
	if count == 0 {
		return domain.ErrAccountNotFound
	}
	return domain.ErrVersionConflict
}

func updateColumns(account *domain.Account, version int64, now time.Time) map[string]any {
	return map[string]any{
		"account_number":  account.AccountNumber,
		"owner_user_name": account.OwnerUserName,
		"pin_hash":        account.PinHash,
		"amount":          account.Amount,
		"version":         version,
		"updated_at":      now,
	}
}

// translate 唯一鍵衝突轉成 duplicate，其他錯誤包成 DataStoreError
func translate(err error, duplicate error, action string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return duplicate
	}
	return domain.StoreError(err, "%s", action)
}

var (
	_ usecase.AccountRepository = (*AccountStore)(nil)
	_ usecase.PairUpdater       = (*AccountStore)(nil)
)
