package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawRequest 提款請求
type WithdrawRequest struct {
	AccountID string
	Pin       string
	Amount    decimal.Decimal
}

// DepositRequest 存款請求
//
// AccountNumber 有值時以帳號找帳戶，否則使用 AccountID。存款不檢查密碼
type DepositRequest struct {
	AccountID     string
	AccountNumber string
	Amount        decimal.Decimal
}

// TransferRequest 轉帳請求，轉出與轉入都以帳號指定
type TransferRequest struct {
	AccountID                string
	SourceAccountNumber      string
	SourcePin                string
	DestinationAccountNumber string
	Amount                   decimal.Decimal
}

// EntryType 帳務紀錄類型
type EntryType string

const (
	EntryTypeWithdraw       EntryType = "withdraw"
	EntryTypeDeposit        EntryType = "deposit"
	EntryTypeTransferDebit  EntryType = "transfer_debit"
	EntryTypeTransferCredit EntryType = "transfer_credit"
	// EntryTypeCompensation 轉帳第二步失敗時，退回已扣款的紀錄
	EntryTypeCompensation EntryType = "compensation"
)

// JournalEntry 已提交的單一帳戶異動 (一個 leg)
type JournalEntry struct {
	ID uuid.UUID `json:"id"`
	// TransferID 同一筆轉帳的扣款、入帳、補償共用
	TransferID   uuid.UUID       `json:"transferId"`
	Type         EntryType       `json:"type"`
	AccountID    string          `json:"accountId"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	Version      int64           `json:"version"`
	At           time.Time       `json:"at"`
}

// NewJournalEntry 依提交後的帳戶狀態建立紀錄
func NewJournalEntry(entryType EntryType, transferID uuid.UUID, account *Account, amount decimal.Decimal) JournalEntry {
	return JournalEntry{
		ID:           uuid.New(),
		TransferID:   transferID,
		Type:         entryType,
		AccountID:    account.ID,
		Amount:       amount,
		BalanceAfter: account.Amount,
		Version:      account.Version,
		At:           account.UpdatedAt,
	}
}
