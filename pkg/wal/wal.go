package wal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// 自己定義常用的權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀)
	FileModeDefault fs.FileMode = 0644

	// rwxr-xr-x (目錄)
	DirMode fs.FileMode = 0755
)

// WAL 以 JSON Lines 格式追加寫入的檔案
type WAL struct {
	file *os.File
	mu   sync.Mutex
	// syncEveryWrite 每筆寫入後 fsync；關閉時需呼叫 Sync 才保證落盤
	syncEveryWrite bool
}

// Option 設定 WAL
type Option func(*WAL)

// WithSyncEveryWrite 每筆寫入後立即刷入硬碟
func WithSyncEveryWrite(enabled bool) Option {
	return func(w *WAL) {
		w.syncEveryWrite = enabled
	}
}

// NewWAL 開啟或建立一個 WAL 檔案 (上層目錄不存在時會建立)
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾，ReadAll 移動讀取位置不影響寫入
// O_CREATE 如果文件不存在則建立
func NewWAL(path string, opts ...Option) (*WAL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, DirMode); err != nil {
			return nil, fmt.Errorf("create wal dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModeDefault)
	if err != nil {
		return nil, err
	}
	w := &WAL{file: file, syncEveryWrite: true}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write 寫入一筆或多筆資料 (每筆一行)
func (w *WAL) Write(values ...any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	encoder := json.NewEncoder(w.file)
	for _, v := range values {
		if err := encoder.Encode(v); err != nil {
			return err
		}
	}
	if w.syncEveryWrite {
		return w.file.Sync()
	}
	return nil
}

// Sync 強制刷入硬碟
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Close 刷入硬碟並關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReadAll 從頭讀取所有資料
// callback 每次收到一行原始 JSON，不會一次將所有資料載入記憶體
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(w.file)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := callback(raw); err != nil {
			return err
		}
	}
}
