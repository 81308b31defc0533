package wal

import (
	"context"
	"encoding/json"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
	"github.com/JoeShih716/go-bank-api/pkg/wal"
)

// Journal 將已提交的帳務異動追加寫入 WAL 檔案
type Journal struct {
	wal *wal.WAL
}

func NewJournal(w *wal.WAL) *Journal {
	return &Journal{wal: w}
}

// Record 一次寫入多筆 (同一筆轉帳的兩個 leg 一起落盤)
func (j *Journal) Record(ctx context.Context, entries ...domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]any, len(entries))
	for i := range entries {
		values[i] = entries[i]
	}
	return j.wal.Write(values...)
}

// Replay 依寫入順序讀回所有紀錄
func (j *Journal) Replay(fn func(entry domain.JournalEntry) error) error {
	return j.wal.ReadAll(func(raw []byte) error {
		var entry domain.JournalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		return fn(entry)
	})
}

var _ usecase.Journal = (*Journal)(nil)
