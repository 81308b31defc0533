package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
)

// UserStore 記憶體使用者儲存層
type UserStore struct {
	mu     sync.RWMutex
	users  map[string]*domain.User
	byName map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:  make(map[string]*domain.User),
		byName: make(map[string]string),
	}
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (s *UserStore) GetByUserName(ctx context.Context, userName string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[userName]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *UserStore) List(ctx context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.User, 0, len(s.users))
	for _, user := range s.users {
		result = append(result, user.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserName < result[j].UserName })
	return result, nil
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return nil, domain.ErrUserAlreadyExists
	}
	if _, ok := s.byName[user.UserName]; ok {
		return nil, domain.ErrUserAlreadyExists
	}
	stored := user.Clone()
	s.users[stored.ID] = stored
	s.byName[stored.UserName] = stored.ID
	return stored.Clone(), nil
}

func (s *UserStore) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[user.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	stored := user.Clone()
	stored.UserName = current.UserName
	stored.CreatedAt = current.CreatedAt
	s.users[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	delete(s.byName, current.UserName)
	delete(s.users, id)
	return nil
}

var _ usecase.UserRepository = (*UserStore)(nil)
