package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
)

// BankServer 以 gRPC 提供提款/存款/轉帳/查餘額
type BankServer struct {
	core     *usecase.TransactionCore
	accounts *usecase.AccountService
}

func NewBankServer(core *usecase.TransactionCore, accounts *usecase.AccountService) *BankServer {
	return &BankServer{
		core:     core,
		accounts: accounts,
	}
}

// NewServer 建立已註冊 BankService 的 gRPC server，訊息一律以 JSON 編碼
func NewServer(impl BankServiceServer, logger *zap.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.ForceServerCodec(Codec()),
		grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)),
	)
	Register(s, impl)
	return s
}

func (s *BankServer) Withdraw(ctx context.Context, req *WithdrawRequest) (*AccountReply, error) {
	account, err := s.core.WithdrawAmount(ctx, domain.WithdrawRequest{
		AccountID: req.AccountID,
		Pin:       req.Pin,
		Amount:    req.Amount,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return newAccountReply(account), nil
}

func (s *BankServer) Deposit(ctx context.Context, req *DepositRequest) (*AccountReply, error) {
	account, err := s.core.DepositAmount(ctx, domain.DepositRequest{
		AccountID:     req.AccountID,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return newAccountReply(account), nil
}

func (s *BankServer) Transfer(ctx context.Context, req *TransferRequest) (*AccountReply, error) {
	account, err := s.core.TransferAmount(ctx, domain.TransferRequest{
		AccountID:                req.AccountID,
		SourceAccountNumber:      req.SourceAccountNumber,
		SourcePin:                req.SourcePin,
		DestinationAccountNumber: req.DestinationAccountNumber,
		Amount:                   req.Amount,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return newAccountReply(account), nil
}

func (s *BankServer) GetBalance(ctx context.Context, req *GetBalanceRequest) (*BalanceReply, error) {
	balance, err := s.accounts.Balance(ctx, req.UserName, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BalanceReply{AccountID: req.AccountID, Balance: balance}, nil
}

// toStatus ResultKind 轉 gRPC status code
func toStatus(err error) error {
	var code codes.Code
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindInvalidData:
		code = codes.InvalidArgument
	case domain.KindDataStoreError:
		code = codes.Aborted
	case domain.KindDuplicate:
		code = codes.AlreadyExists
	default:
		code = codes.Internal
	}
	return status.Error(code, domain.PublicMessage(err))
}

// LoggingInterceptor 記錄每個 unary 呼叫的方法、耗時與結果
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
			zap.String("code", code.String()),
		}
		switch code {
		case codes.OK, codes.NotFound, codes.InvalidArgument, codes.AlreadyExists:
			logger.Info("grpc request", fields...)
		default:
			logger.Warn("grpc request", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

var _ BankServiceServer = (*BankServer)(nil)
