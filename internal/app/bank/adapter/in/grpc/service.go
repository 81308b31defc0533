package grpc

import (
	"context"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
)

const ServiceName = "bank.v1.BankService"

type WithdrawRequest struct {
	AccountID string          `json:"accountId"`
	Pin       string          `json:"pin"`
	Amount    decimal.Decimal `json:"amount"`
}

type DepositRequest struct {
	AccountID     string          `json:"accountId"`
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	AccountID                string          `json:"accountId"`
	SourceAccountNumber      string          `json:"sourceAccountNumber"`
	SourcePin                string          `json:"sourcePin"`
	DestinationAccountNumber string          `json:"destinationAccountNumber"`
	Amount                   decimal.Decimal `json:"amount"`
}

type GetBalanceRequest struct {
	UserName  string `json:"userName"`
	AccountID string `json:"accountId"`
}

// AccountReply 交易後的帳戶狀態 (不含密碼雜湊)
type AccountReply struct {
	AccountID     string          `json:"accountId"`
	AccountNumber string          `json:"accountNumber"`
	OwnerUserName string          `json:"ownerUserName"`
	Balance       decimal.Decimal `json:"balance"`
	Version       int64           `json:"version"`
}

type BalanceReply struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
}

func newAccountReply(account *domain.Account) *AccountReply {
	return &AccountReply{
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		OwnerUserName: account.OwnerUserName,
		Balance:       account.Amount,
		Version:       account.Version,
	}
}

// BankServiceServer bank.v1.BankService 的實作介面
type BankServiceServer interface {
	Withdraw(ctx context.Context, req *WithdrawRequest) (*AccountReply, error)
	Deposit(ctx context.Context, req *DepositRequest) (*AccountReply, error)
	Transfer(ctx context.Context, req *TransferRequest) (*AccountReply, error)
	GetBalance(ctx context.Context, req *GetBalanceRequest) (*BalanceReply, error)
}

// unaryHandler 將型別化的方法包成 grpc.MethodHandler (等同 protoc 產生的 _Handler 函式)
func unaryHandler[Req, Resp any](method string, call func(BankServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		impl := srv.(BankServiceServer)
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(impl, ctx, req.(*Req))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BankServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Withdraw", Handler: unaryHandler("Withdraw", BankServiceServer.Withdraw)},
		{MethodName: "Deposit", Handler: unaryHandler("Deposit", BankServiceServer.Deposit)},
		{MethodName: "Transfer", Handler: unaryHandler("Transfer", BankServiceServer.Transfer)},
		{MethodName: "GetBalance", Handler: unaryHandler("GetBalance", BankServiceServer.GetBalance)},
	},
	Streams: []grpc.StreamDesc{},
}

// Register 將實作註冊到 gRPC server
func Register(s grpc.ServiceRegistrar, impl BankServiceServer) {
	s.RegisterService(&serviceDesc, impl)
}

// BankClient bank.v1.BankService 的客戶端
type BankClient struct {
	cc grpc.ClientConnInterface
}

func NewBankClient(cc grpc.ClientConnInterface) *BankClient {
	return &BankClient{cc: cc}
}

func (c *BankClient) Withdraw(ctx context.Context, in *WithdrawRequest, opts ...grpc.CallOption) (*AccountReply, error) {
	return invoke[AccountReply](ctx, c.cc, "Withdraw", in, opts)
}

func (c *BankClient) Deposit(ctx context.Context, in *DepositRequest, opts ...grpc.CallOption) (*AccountReply, error) {
	return invoke[AccountReply](ctx, c.cc, "Deposit", in, opts)
}

func (c *BankClient) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*AccountReply, error) {
	return invoke[AccountReply](ctx, c.cc, "Transfer", in, opts)
}

func (c *BankClient) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*BalanceReply, error) {
	return invoke[BalanceReply](ctx, c.cc, "GetBalance", in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec())}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
