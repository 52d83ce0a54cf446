// Пакет lease — эксклюзивная аренда фонового обслуживания хранилища
// через flock() на общей файловой системе.
//
// Несколько процессов docstore могут работать с одним корнем хранилища.
// Загрузка и выдача документов от аренды не зависят, а GC и плановая
// сверка выполняются только владельцем аренды:
//  1. Попытка захватить эксклюзивную блокировку {root}/.maintenance.lock
//  2. Владелец записывает свой идентификатор в .maintenance.owner
//  3. Остальные периодически повторяют попытку захвата
package lease

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// LockFile — имя файла блокировки.
	LockFile = ".maintenance.lock"
	// OwnerFile — имя файла с идентификатором владельца.
	OwnerFile = ".maintenance.owner"
	// DefaultRetryInterval — интервал повторного захвата.
	DefaultRetryInterval = 5 * time.Second
)

// Lease — аренда обслуживания хранилища.
type Lease struct {
	dir   string
	owner string
	retry time.Duration

	logger *slog.Logger

	mu       sync.RWMutex
	held     bool
	lockFile *os.File

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New создаёт аренду в каталоге dir. owner — идентификатор процесса
// (обычно hostname:port), записывается для диагностики.
// retry <= 0 означает DefaultRetryInterval.
func New(dir, owner string, retry time.Duration, logger *slog.Logger) *Lease {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &Lease{
		dir:    dir,
		owner:  owner,
		retry:  retry,
		logger: logger.With(slog.String("component", "lease")),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start выполняет первую попытку захвата. Если аренда занята,
// запускается горутина повторных попыток.
func (l *Lease) Start() error {
	acquired, err := l.tryAcquire()
	if err != nil {
		close(l.done)
		return fmt.Errorf("ошибка захвата аренды: %w", err)
	}

	if acquired {
		l.onAcquired()
		close(l.done)
		return nil
	}

	l.logger.Info("Аренда обслуживания занята другим процессом",
		slog.String("holder", l.Holder()),
	)
	go l.retryLoop()
	return nil
}

// Stop останавливает повторные попытки и освобождает блокировку.
// Повторный вызов безопасен.
func (l *Lease) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		<-l.done

		l.mu.Lock()
		defer l.mu.Unlock()

		if l.lockFile != nil {
			_ = syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)
			_ = l.lockFile.Close()
			l.lockFile = nil
			l.logger.Info("Аренда обслуживания освобождена")
		}
		l.held = false
	})
}

// Held возвращает true, если аренда принадлежит этому процессу.
func (l *Lease) Held() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.held
}

// Holder возвращает идентификатор текущего владельца аренды
// или пустую строку, если он неизвестен.
func (l *Lease) Holder() string {
	data, err := os.ReadFile(filepath.Join(l.dir, OwnerFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// tryAcquire делает неблокирующую попытку захватить flock.
func (l *Lease) tryAcquire() (bool, error) {
	lockPath := filepath.Join(l.dir, LockFile)

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return false, fmt.Errorf("не удалось открыть %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка flock %s: %w", lockPath, err)
	}

	l.mu.Lock()
	l.lockFile = f
	l.held = true
	l.mu.Unlock()

	return true, nil
}

func (l *Lease) onAcquired() {
	if err := l.writeOwner(); err != nil {
		l.logger.Warn("Ошибка записи владельца аренды",
			slog.String("error", err.Error()),
		)
	}
	l.logger.Info("Аренда обслуживания получена",
		slog.String("owner", l.owner),
	)
}

// retryLoop периодически пытается захватить аренду до успеха или Stop.
func (l *Lease) retryLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			acquired, err := l.tryAcquire()
			if err != nil {
				l.logger.Warn("Ошибка повторного захвата аренды",
					slog.String("error", err.Error()),
				)
				continue
			}
			if acquired {
				l.onAcquired()
				return
			}
		}
	}
}

// writeOwner атомарно записывает идентификатор владельца.
func (l *Lease) writeOwner() error {
	infoPath := filepath.Join(l.dir, OwnerFile)
	tmpPath := infoPath + ".tmp"

	if err := os.WriteFile(tmpPath, []byte(l.owner), 0o640); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, infoPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка переименования %s: %w", infoPath, err)
	}
	return nil
}
