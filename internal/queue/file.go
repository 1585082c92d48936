package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shaiso/squll/internal/domain"
)

// FileSource — пакетный режим: task читаются из JSON-массива в файле,
// результаты пишутся построчно (JSON lines) в out.
type FileSource struct {
	mu    sync.Mutex
	tasks []domain.Task
	next  int

	enc      *json.Encoder
	identity domain.Identity
	host     domain.HostInfo
}

// NewFileSource читает файл с task.
func NewFileSource(path string, out io.Writer, identity domain.Identity, host domain.HostInfo) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch input: %w", err)
	}

	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%w: batch input %s: %v", ErrProtocol, path, err)
	}

	return &FileSource{
		tasks:    tasks,
		enc:      json.NewEncoder(out),
		identity: identity,
		host:     host,
	}, nil
}

// Len возвращает количество task в файле.
func (s *FileSource) Len() int {
	return len(s.tasks)
}

// GetWork возвращает следующий task; после последнего — ErrNoWork.
func (s *FileSource) GetWork(_ context.Context) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.tasks) {
		return nil, fmt.Errorf("%w: Out of work", ErrNoWork)
	}
	task := s.tasks[s.next]
	s.next++
	return &task, nil
}

// PutWork пишет тело put_work одной строкой.
func (s *FileSource) PutWork(_ context.Context, task *domain.Task, results domain.ResultSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(BuildPayload(s.identity, s.host, task, results)); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
