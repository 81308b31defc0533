package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
)

// AccountStore 以 Mutex 保護的記憶體帳戶儲存層
//
// 結構:
//
//	accounts: 帳戶 ID 對應帳戶
//	byNumber: 帳號對應帳戶 ID
//	mu: 保護上面兩個 Map
//
// 這是儲存層本身 (store.driver: memory)，不是 SQL 儲存層前面的快取
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	byNumber map[string]string
	now      func() time.Time
}

// NewAccountStore 建立記憶體帳戶儲存層
//
// 參數:
//
//	accounts: 初始帳戶 (會複製一份)，可為 nil
//
// 回傳:
//
//	*AccountStore: 儲存層實例
//	error: 初始帳戶 ID 或帳號重複
func NewAccountStore(accounts ...*domain.Account) (*AccountStore, error) {
	store := &AccountStore{
		accounts: make(map[string]*domain.Account, len(accounts)),
		byNumber: make(map[string]string, len(accounts)),
		now:      time.Now,
	}
	for _, account := range accounts {
		if _, err := store.Create(context.Background(), account); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// GetByID 以帳戶 ID 查詢
func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StoreError(err, "get account")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

// GetByAccountNumber 以帳號查詢
func (s *AccountStore) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StoreError(err, "get account")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[accountNumber]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s.accounts[id].Clone(), nil
}

// List 列出所有帳戶 (依 ID 排序)
func (s *AccountStore) List(ctx context.Context) ([]*domain.Account, error) {
	return s.filter(ctx, func(*domain.Account) bool { return true })
}

// ListByOwner 列出使用者名下帳戶
func (s *AccountStore) ListByOwner(ctx context.Context, userName string) ([]*domain.Account, error) {
	return s.filter(ctx, func(a *domain.Account) bool { return a.OwnerUserName == userName })
}

func (s *AccountStore) filter(ctx context.Context, keep func(*domain.Account) bool) ([]*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StoreError(err, "list accounts")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if keep(account) {
			result = append(result, account.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Create 新增帳戶
func (s *AccountStore) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StoreError(err, "create account")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; ok {
		return nil, domain.ErrAccountAlreadyExists
	}
	if _, ok := s.byNumber[account.AccountNumber]; ok {
		return nil, domain.ErrAccountAlreadyExists
	}
	stored := account.Clone()
	stored.Pin = ""
	if stored.Version == 0 {
		stored.Version = 1
	}
	s.accounts[stored.ID] = stored
	s.byNumber[stored.AccountNumber] = stored.ID
	return stored.Clone(), nil
}

// ConditionalUpdate 版本相符才寫入 (CAS)
func (s *AccountStore) ConditionalUpdate(ctx context.Context, expectedVersion int64, account *domain.Account) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StoreError(err, "update account")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(account, expectedVersion); err != nil {
		return nil, err
	}
	return s.apply(account), nil
}

// ConditionalUpdatePair 兩筆都版本相符才一起寫入
//
// 整個 store 只有一把鎖，兩筆在同一個臨界區內檢查與寫入
func (s *AccountStore) ConditionalUpdatePair(ctx context.Context, a, b usecase.VersionedAccount) (*domain.Account, *domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, domain.StoreError(err, "update accounts")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(a.Account, a.ExpectedVersion); err != nil {
		return nil, nil, err
	}
	if err := s.checkVersion(b.Account, b.ExpectedVersion); err != nil {
		return nil, nil, err
	}
	return s.apply(a.Account), s.apply(b.Account), nil
}

// ConditionalDelete 版本相符才刪除
func (s *AccountStore) ConditionalDelete(ctx context.Context, id string, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return domain.StoreError(err, "delete account")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	delete(s.byNumber, current.AccountNumber)
	delete(s.accounts, id)
	return nil
}

// checkVersion 呼叫端需持有寫鎖
func (s *AccountStore) checkVersion(account *domain.Account, expectedVersion int64) error {
	current, ok := s.accounts[account.ID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	if account.AccountNumber != current.AccountNumber {
		if _, taken := s.byNumber[account.AccountNumber]; taken {
			return domain.ErrAccountAlreadyExists
		}
	}
	return nil
}

// apply 寫入新版本，呼叫端需持有寫鎖且已檢查版本
func (s *AccountStore) apply(account *domain.Account) *domain.Account {
	current := s.accounts[account.ID]
	stored := account.Clone()
	stored.Pin = ""
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = s.now().UTC()
	if stored.AccountNumber != current.AccountNumber {
		delete(s.byNumber, current.AccountNumber)
		s.byNumber[stored.AccountNumber] = stored.ID
	}
	s.accounts[stored.ID] = stored
	return stored.Clone()
}

var (
	_ usecase.AccountRepository = (*AccountStore)(nil)
	_ usecase.PairUpdater       = (*AccountStore)(nil)
)
