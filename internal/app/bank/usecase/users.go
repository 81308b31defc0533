package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
)

// UserService 使用者 CRUD
type UserService struct {
	users    UserRepository
	accounts AccountRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewUserService(users UserRepository, accounts AccountRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:    users,
		accounts: accounts,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) GetByUserName(ctx context.Context, userName string) (*domain.User, error) {
	return s.users.GetByUserName(ctx, userName)
}

// Get 以 ID 查詢，UserName 不符視同不存在
func (s *UserService) Get(ctx context.Context, userName, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.UserName != userName {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, domain.InvalidData("user is required")
	}
	next := user.Clone()
	next.UserName = strings.TrimSpace(next.UserName)
	if next.UserName == "" {
		return nil, domain.InvalidData("userName is required")
	}
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	now := s.now().UTC()
	next.CreatedAt = now
	next.UpdatedAt = now

	created, err := s.users.Create(ctx, next)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", created.ID), zap.String("user_name", created.UserName))
	return created, nil
}

// Update 更新使用者資料；UserName 不可修改，否則名下帳戶的弱參照會失效
func (s *UserService) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil || user.ID == "" {
		return nil, domain.InvalidData("user id is required")
	}
	current, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if user.UserName != "" && user.UserName != current.UserName {
		return nil, domain.InvalidData("userName cannot be changed")
	}
	next := current.Clone()
	next.FirstName = user.FirstName
	next.LastName = user.LastName
	next.Email = user.Email
	next.UpdatedAt = s.now().UTC()
	return s.users.Update(ctx, next)
}

// Delete 刪除使用者；名下還有帳戶時拒絕
func (s *UserService) Delete(ctx context.Context, userName, id string) (*domain.User, error) {
	user, err := s.Get(ctx, userName, id)
	if err != nil {
		return nil, err
	}
	owned, err := s.accounts.ListByOwner(ctx, userName)
	if err != nil {
		return nil, err
	}
	if len(owned) > 0 {
		return nil, domain.InvalidData("user %s still owns %d account(s)", userName, len(owned))
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("user deleted", zap.String("user_id", id), zap.String("user_name", userName))
	return user, nil
}
