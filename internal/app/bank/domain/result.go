package domain

import (
	"errors"
	"fmt"
)

// ResultKind 失敗結果的分類，API 層只依照這個分類決定回應碼
type ResultKind uint8

const (
	// KindUnknown 未分類的錯誤
	KindUnknown ResultKind = iota
	// KindNotFound 帳戶或使用者不存在
	KindNotFound
	// KindInvalidData 輸入錯誤或業務前置條件不成立 (密碼錯誤、金額不合法、餘額不足...)
	KindInvalidData
	// KindDataStoreError 儲存層不可用、寫入衝突或重試耗盡
	KindDataStoreError
	// KindDuplicate 建立時違反唯一性
	KindDuplicate
)

func (k ResultKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidData:
		return "invalid_data"
	case KindDataStoreError:
		return "data_store_error"
	case KindDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Error 帶有 ResultKind 的錯誤
//
// Message 是可以直接回給使用者的訊息，Err 是底層原因 (可能含有儲存層細節，不對外)
type Error struct {
	Kind    ResultKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ResultKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound 建立 KindNotFound 錯誤
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// InvalidData 建立 KindInvalidData 錯誤
func InvalidData(format string, args ...any) *Error {
	return newError(KindInvalidData, format, args...)
}

// Duplicate 建立 KindDuplicate 錯誤
func Duplicate(format string, args ...any) *Error {
	return newError(KindDuplicate, format, args...)
}

// StoreError 將儲存層錯誤包裝成 KindDataStoreError
//
// 已經分類過的錯誤 (例如 ErrAccountNotFound) 原樣回傳，不會被降級成 DataStoreError
func StoreError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: KindDataStoreError, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 取得錯誤的分類，nil 或未分類的錯誤回傳 KindUnknown
func KindOf(err error) ResultKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}

// PublicMessage 回傳可以對外顯示的錯誤訊息
func PublicMessage(err error) string {
	var typed *Error
	if !errors.As(err, &typed) {
		return "internal error"
	}
	if typed.Kind == KindDataStoreError {
		return typed.Message
	}
	return err.Error()
}
