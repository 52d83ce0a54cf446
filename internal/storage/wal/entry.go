// Пакет wal — файловый журнал сохранений (Write-Ahead Log).
// Каждая транзакция — отдельный файл {tx_id}.wal.json в DS_WAL_DIR,
// поэтому параллельные сохранения не требуют общей блокировки.
package wal

import (
	"time"
)

// OperationType — тип операции, записываемой в WAL.
type OperationType string

const (
	// OpSave — сохранение документа: перемещение blob и запись sidecar
	OpSave OperationType = "save"
)

// TransactionStatus — статус транзакции WAL.
type TransactionStatus string

const (
	// StatusPending — транзакция начата, операция в процессе
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — транзакция успешно завершена
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — транзакция отменена
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись WAL. Хранится как JSON-файл {tx_id}.wal.json.
type Entry struct {
	// TransactionID — уникальный идентификатор транзакции (UUID v4)
	TransactionID string `json:"transaction_id"`

	Operation OperationType     `json:"operation"`
	Status    TransactionStatus `json:"status"`

	// Identifier — идентификатор сохраняемого документа
	Identifier string `json:"identifier"`

	// BlobPath — путь, по которому будет размещён blob.
	// MetaPath — путь sidecar. Пустые до размещения.
	BlobPath string `json:"blob_path,omitempty"`
	MetaPath string `json:"meta_path,omitempty"`

	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения транзакции (UTC).
	// nil для pending транзакций.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// walFileName возвращает имя файла WAL для данной транзакции.
func walFileName(txID string) string {
	return txID + walSuffix
}

const walSuffix = ".wal.json"
