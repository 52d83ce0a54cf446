package openapi

import "time"

// Reference — ссылка на документ: токен доступа или идентификатор.
type Reference = string

// UploadResponse — ответ на успешную загрузку.
type UploadResponse struct {
	Message     string `json:"message"`
	Reference   string `json:"reference"`
	ViewURL     string `json:"viewUrl"`
	DownloadURL string `json:"downloadUrl"`
	FileName    string `json:"fileName"`
}

// DocumentCounts — сводка по документам в хранилище.
type DocumentCounts struct {
	Total      int            `json:"total"`
	TotalBytes int64          `json:"totalBytes"`
	ByCategory map[string]int `json:"byCategory"`
}

// DiskUsage — ёмкость файловой системы хранилища.
type DiskUsage struct {
	TotalBytes     int64 `json:"totalBytes"`
	UsedBytes      int64 `json:"usedBytes"`
	AvailableBytes int64 `json:"availableBytes"`
}

// StorageInfoStatus — состояние хранилища.
type StorageInfoStatus string

const (
	StorageInfoStatusOnline   StorageInfoStatus = "online"
	StorageInfoStatusStarting StorageInfoStatus = "starting"
)

// StorageInfo — ответ GET /api/v1/info.
type StorageInfo struct {
	Version       string            `json:"version"`
	Status        StorageInfoStatus `json:"status"`
	ReferenceMode string            `json:"referenceMode"`
	IndexMode     string            `json:"indexMode"`
	MaxFileSize   int64             `json:"maxFileSize"`
	Categories    []string          `json:"categories"`
	MimeTypes     []string          `json:"mimeTypes"`
	Documents     DocumentCounts    `json:"documents"`
	Disk          *DiskUsage        `json:"disk,omitempty"`
}

// HealthCheck — результат одной проверки готовности.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthStatus — ответ health endpoints.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Service   string                 `json:"service"`
	Checks    map[string]HealthCheck `json:"checks,omitempty"`
}
