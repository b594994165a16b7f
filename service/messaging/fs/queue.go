// Package fs provides a filesystem-backed messaging.Queue built on viant/afs.
// Each message is one JSON file moving between pending, processing and dlq
// directories, which makes in-flight traffic inspectable and survivable
// across restarts.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/corpcraft/gatekeeper/internal/clock"
	"github.com/corpcraft/gatekeeper/internal/idgen"
	"github.com/corpcraft/gatekeeper/service/messaging"
)

// Config holds filesystem queue settings.
type Config struct {
	// BaseURL is the afs location holding the queue directories, e.g.
	// "file:///var/lib/gatekeeper/queue" or "mem://localhost/queue".
	BaseURL string

	// MaxRetries bounds redelivery before a message is dead-lettered.
	MaxRetries int

	// PollInterval is how often Consume re-lists an empty pending directory.
	PollInterval time.Duration
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		MaxRetries:   3,
		PollInterval: 20 * time.Millisecond,
	}
}

type envelope[T any] struct {
	ID        string    `json:"id"`
	Data      T         `json:"data"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a single filesystem-backed delivery.
type Message[T any] struct {
	env       envelope[T]
	url       string
	queue     *Queue[T]
	mu        sync.Mutex
	processed bool
}

// T returns the message payload.
func (m *Message[T]) T() *T { return &m.env.Data }

// Ack removes the message from the processing directory.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.env.ID)
	}
	m.processed = true
	return m.queue.fs.Delete(context.Background(), m.url)
}

// Nack requeues the message for redelivery, or dead-letters it once the
// retry budget is spent.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.env.ID)
	}
	m.processed = true
	return m.queue.retry(context.Background(), m)
}

// Queue implements messaging.Queue on top of an afs location.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingDir    string
	processingDir string
	dlqDir        string
	mu            sync.Mutex
}

// NewQueue creates the queue directories and returns a ready queue.
func NewQueue[T any](fileService afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("queue base URL cannot be empty")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 20 * time.Millisecond
	}
	q := &Queue[T]{
		fs:            fileService,
		config:        config,
		pendingDir:    url.Join(config.BaseURL, "pending"),
		processingDir: url.Join(config.BaseURL, "processing"),
		dlqDir:        url.Join(config.BaseURL, "dlq"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingDir, q.processingDir, q.dlqDir} {
		if exists, _ := fileService.Exists(ctx, dir); !exists {
			if err := fileService.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create queue directory %s: %w", dir, err)
			}
		}
	}
	return q, nil
}

// Publish writes the payload as a new pending file. Filenames embed the
// creation timestamp so that directory listing order is delivery order.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	env := envelope[T]{ID: idgen.New(), Data: *t, CreatedAt: clock.Now()}
	return q.write(ctx, url.Join(q.pendingDir, q.filename(&env)), &env)
}

// Consume pops the oldest pending file, moving it to processing first so a
// crash between list and decode never loses the message.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		msg, err := q.pop(ctx)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.config.PollInterval):
		}
	}
}

// Size returns the number of pending messages.
func (q *Queue[T]) Size() int {
	objects, err := q.fs.List(context.Background(), q.pendingDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, obj := range objects {
		if !obj.IsDir() && strings.HasSuffix(obj.Name(), ".json") {
			count++
		}
	}
	return count
}

func (q *Queue[T]) filename(env *envelope[T]) string {
	return fmt.Sprintf("%020d-%s.json", env.CreatedAt.UnixNano(), env.ID)
}

func (q *Queue[T]) write(ctx context.Context, url string, env *envelope[T]) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", env.ID, err)
	}
	return q.fs.Upload(ctx, url, file.DefaultFileOsMode, bytes.NewReader(data))
}

func (q *Queue[T]) pop(ctx context.Context) (*Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	objects, err := q.fs.List(ctx, q.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasSuffix(obj.Name(), ".json") {
			continue
		}
		processingURL := url.Join(q.processingDir, obj.Name())
		if err := q.fs.Move(ctx, obj.URL(), processingURL); err != nil {
			return nil, fmt.Errorf("failed to claim message %s: %w", obj.Name(), err)
		}
		data, err := q.fs.DownloadWithURL(ctx, processingURL)
		if err != nil {
			return nil, fmt.Errorf("failed to read message %s: %w", obj.Name(), err)
		}
		msg := &Message[T]{url: processingURL, queue: q}
		if err := json.Unmarshal(data, &msg.env); err != nil {
			// Undecodable payload: park it, keep consuming.
			_ = q.fs.Move(ctx, processingURL, url.Join(q.dlqDir, "invalid-"+obj.Name()))
			continue
		}
		return msg, nil
	}
	return nil, nil
}

func (q *Queue[T]) retry(ctx context.Context, m *Message[T]) error {
	if err := q.fs.Delete(ctx, m.url); err != nil {
		return err
	}
	m.env.Retries++
	if m.env.Retries > q.config.MaxRetries {
		return q.write(ctx, url.Join(q.dlqDir, q.filename(&m.env)), &m.env)
	}
	return q.write(ctx, url.Join(q.pendingDir, q.filename(&m.env)), &m.env)
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
