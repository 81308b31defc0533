package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// AmountScale 金額精度：小數點後 4 位，超過的金額直接拒絕，不做四捨五入
const AmountScale = 4

// MaxIntegerDigits 金額整數部分最多位數，對應資料庫欄位 decimal(20,4)
const MaxIntegerDigits = 16

// maxAmount 金額與餘額的上限 (不含)：10^MaxIntegerDigits
var maxAmount = decimal.New(1, MaxIntegerDigits)

func init() {
	// 金額在 JSON 中一律以數字輸出 (不加引號)，讀取時兩種格式都接受
	decimal.MarshalJSONWithoutQuotes = true
}

// Account 帳戶
//
// Pin 只在寫入時使用 (建立/更新)，儲存層只保存 PinHash；
// Amount 只能由 TransactionCore 的 commit 修改
type Account struct {
	ID            string          `json:"id"`
	AccountNumber string          `json:"accountNumber"`
	OwnerUserName string          `json:"ownerUserName"`
	Pin           string          `json:"pin,omitempty"`
	PinHash       string          `json:"-"`
	Amount        decimal.Decimal `json:"amount"`
	// Version 每次寫入加一，條件更新 (CAS) 以它為準
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone 複製一份帳戶，避免呼叫端與儲存層共用同一個指標
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// Deposit 存款
func (a *Account) Deposit(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	next := a.Amount.Add(amount)
	if next.GreaterThanOrEqual(maxAmount) {
		return ErrBalanceTooLarge
	}
	a.Amount = next
	return nil
}

// Withdraw 提款
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if a.Amount.LessThan(amount) {
		return ErrInsufficientBalance
	}
	a.Amount = a.Amount.Sub(amount)
	return nil
}

// CheckPin 比對密碼
func (a *Account) CheckPin(pin string) error {
	if a.PinHash == "" || pin == "" {
		return ErrInvalidPin
	}
	err := bcrypt.CompareHashAndPassword([]byte(a.PinHash), []byte(pin))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidPin
	}
	if err != nil {
		return InvalidData("stored pin is unusable")
	}
	return nil
}

// HashPin 產生密碼雜湊
func HashPin(pin string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ValidateAmount 檢查交易金額：必須為正數、不超過 AmountScale 位小數、整數部分不超過 MaxIntegerDigits 位
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountMustBePositive
	}
	return checkAmountSize(amount)
}

// ValidateBalance 檢查開戶金額：可以為零，其餘限制與交易金額相同
func ValidateBalance(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrBalanceNegative
	}
	return checkAmountSize(amount)
}

// checkAmountSize 先只看係數位數與指數判斷大小，通過後才做任何運算
//
// 1e20000000 這類金額的係數只有一位，但任何 Add/Cmp/Float64 都要先展開成 10^指數 的大數
func checkAmountSize(amount decimal.Decimal) error {
	exp := int64(amount.Exponent())
	digits := int64(amount.NumDigits())
	// NumDigits 對 10 的次方可能少算一位，這裡只擋數量級，精確上限在下面比較
	if digits+exp > MaxIntegerDigits+1 {
		return ErrAmountTooLarge
	}
	if exp < -AmountScale {
		// 小數位數多於 AmountScale，只有多出來的都是 0 才合法 (例如 1.00000)
		if -exp-AmountScale > digits+1 {
			return ErrAmountPrecision
		}
		if !amount.Equal(amount.Truncate(AmountScale)) {
			return ErrAmountPrecision
		}
	}
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// LockOrder 回傳兩個帳戶的上鎖順序 (依 ID 字典序)，
// 不論哪一個是轉出方，兩筆方向相反的轉帳都會以相同順序上鎖，避免死鎖
func LockOrder(a, b string) (first, second string) {
	if a <= b {
		return a, b
	}
	return b, a
}
