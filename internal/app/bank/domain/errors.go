package domain

var (
	// ErrAmountMustBePositive 金額必須為正數
	ErrAmountMustBePositive = InvalidData("amount must be positive")

	// ErrAmountPrecision 金額小數位數超過 AmountScale
	ErrAmountPrecision = InvalidData("amount has more than %d decimal places", AmountScale)

	// ErrAmountTooLarge 金額整數部分超過 MaxIntegerDigits 位
	ErrAmountTooLarge = InvalidData("amount must be less than 1e%d", MaxIntegerDigits)

	// ErrBalanceNegative 開戶金額為負數
	ErrBalanceNegative = InvalidData("opening amount must not be negative")

	// ErrBalanceTooLarge 入帳後餘額超過上限
	ErrBalanceTooLarge = InvalidData("resulting balance must be less than 1e%d", MaxIntegerDigits)

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = InvalidData("insufficient balance")

	// ErrInvalidPin 密碼錯誤
	ErrInvalidPin = InvalidData("invalid pin")

	// ErrSameAccount 轉出與轉入為同一帳戶
	ErrSameAccount = InvalidData("source and destination accounts must differ")

	// ErrAccountReferenceMissing 沒有指定要操作的帳戶
	ErrAccountReferenceMissing = InvalidData("account id or account number is required")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = NotFound("account not found")

	// ErrUserNotFound 找不到使用者
	ErrUserNotFound = NotFound("user not found")

	// ErrAccountAlreadyExists 帳戶 ID 或帳號已存在
	ErrAccountAlreadyExists = Duplicate("account already exists")

	// ErrUserAlreadyExists 使用者名稱已存在
	ErrUserAlreadyExists = Duplicate("user already exists")

	// ErrVersionConflict 條件更新時版本不符 (有其他請求先寫入)
	ErrVersionConflict = &Error{Kind: KindDataStoreError, Message: "version conflict"}

	// ErrContention 版本衝突重試次數耗盡
	ErrContention = &Error{Kind: KindDataStoreError, Message: "too much contention, retries exhausted"}
)
