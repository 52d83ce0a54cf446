// Пакет model — доменные модели сервиса документов.
// FileRecord — единая структура метаданных документа, используется
// как in-memory представление и как формат sidecar-файла *.meta.json.
package model

import (
	"time"
)

// FileRecord — метаданные сохранённого документа. Соответствует содержимому
// sidecar-файла. Запись создаётся один раз при загрузке и далее не изменяется.
type FileRecord struct {
	// Identifier — основной идентификатор (64 hex-символа)
	Identifier string `json:"identifier"`

	// AccessToken — публичная ссылка, независимая от Identifier (32 hex-символа)
	AccessToken string `json:"access_token,omitempty"`

	// OriginalName — имя файла от клиента. Только для отображения,
	// никогда не участвует в построении пути.
	OriginalName string `json:"original_name"`

	// StoredFileName — имя blob на диске: Identifier + расширение
	StoredFileName string `json:"stored_file_name"`

	// MimeType — MIME-тип из таблицы категорий
	MimeType string `json:"mime_type"`

	// Size — размер blob в байтах (совпадает с размером на диске)
	Size int64 `json:"size"`

	// Checksum — SHA-256 содержимого (опционально)
	Checksum string `json:"checksum,omitempty"`

	// UploadedAt — время загрузки (UTC)
	UploadedAt time.Time `json:"uploaded_at"`

	// Category — подкаталог хранения, выводится из MimeType
	Category Category `json:"category"`

	// Folder — пользовательская подпапка внутри категории (опционально)
	Folder string `json:"folder,omitempty"`

	// FilePath — абсолютный путь к blob. Не возвращается клиентам.
	FilePath string `json:"file_path"`
}

// FileHandle — результат разрешения ссылки. Содержит всё, что нужно
// HTTP-слою для отдачи файла. Path используется только на сервере.
type FileHandle struct {
	Path        string
	DisplayName string
	MimeType    string
	Size        int64
	Checksum    string
	UploadedAt  time.Time
}

// Handle строит FileHandle из записи.
func (r *FileRecord) Handle() *FileHandle {
	return &FileHandle{
		Path:        r.FilePath,
		DisplayName: r.OriginalName,
		MimeType:    r.MimeType,
		Size:        r.Size,
		Checksum:    r.Checksum,
		UploadedAt:  r.UploadedAt,
	}
}
