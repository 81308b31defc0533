package wal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/pkg/wal"
)

func TestJournal_RecordAndReplay(t *testing.T) {
	w, err := wal.NewWAL(filepath.Join(t.TempDir(), "journal.log"))
	require.NoError(t, err)
	defer w.Close()
	journal := NewJournal(w)

	transferID := uuid.New()
	source := &domain.Account{ID: "1", Amount: decimal.NewFromInt(40), Version: 3}
	destination := &domain.Account{ID: "2", Amount: decimal.RequireFromString("60.125"), Version: 2}
	require.NoError(t, journal.Record(context.Background(),
		domain.NewJournalEntry(domain.EntryTypeTransferDebit, transferID, source, decimal.NewFromInt(60)),
		domain.NewJournalEntry(domain.EntryTypeTransferCredit, transferID, destination, decimal.NewFromInt(60)),
	))
	require.NoError(t, journal.Record(context.Background()))

	var replayed []domain.JournalEntry
	require.NoError(t, journal.Replay(func(entry domain.JournalEntry) error {
		replayed = append(replayed, entry)
		return nil
	}))

	require.Len(t, replayed, 2)
	assert.Equal(t, domain.EntryTypeTransferDebit, replayed[0].Type)
	assert.Equal(t, transferID, replayed[0].TransferID)
	assert.Equal(t, transferID, replayed[1].TransferID)
	assert.Equal(t, "2", replayed[1].AccountID)
	assert.Equal(t, "60.125", replayed[1].BalanceAfter.String())
	assert.Equal(t, int64(2), replayed[1].Version)
}
