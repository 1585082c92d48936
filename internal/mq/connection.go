package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConnected — канала нет: соединение не установлено или восстанавливается.
	ErrNotConnected = errors.New("amqp: not connected")

	// ErrConnectionClosed — Connection закрыт через Close, новые подключения не создаются.
	ErrConnectionClosed = errors.New("amqp: connection closed")
)

// Default configuration values.
const (
	defaultReconnectDelay    = time.Second
	defaultMaxReconnectDelay = 30 * time.Second
)

// Connection — AMQP-соединение с одним каналом и переподключением в фоне.
type Connection struct {
	url    string
	logger *slog.Logger
	dial   func(url string) (*amqp.Connection, error)

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	reconnectCh chan struct{}
}

// NewConnection подключается к брокеру. Ошибка первого подключения возвращается сразу:
// зеркало результатов необязательно, и воркер может работать без него.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:         url,
		logger:      logger.With("component", "amqp"),
		dial:        amqp.Dial,
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watch()

	return c, nil
}

func (c *Connection) connect() error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return retry.Unrecoverable(ErrConnectionClosed)
	}

	dial := c.dial
	if dial == nil {
		dial = amqp.Dial
	}
	conn, err := dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	// Close мог отработать, пока шло подключение
	if err := c.adopt(conn, ch); err != nil {
		ch.Close()
		conn.Close()
		return retry.Unrecoverable(err)
	}

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// adopt сохраняет новое соединение, если Connection ещё не закрыт.
func (c *Connection) adopt(conn *amqp.Connection, ch *amqp.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	c.conn = conn
	c.channel = ch
	return nil
}

// watch ждёт разрыва соединения и восстанавливает его.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection lost", "error", err)
			}
		}

		c.mu.Lock()
		c.channel = nil
		c.mu.Unlock()

		if err := c.reconnect(); err != nil {
			// Закрыто во время переподключения
			return
		}
	}
}

// reconnect повторяет подключение с экспоненциальной задержкой до успеха или Close.
func (c *Connection) reconnect() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.closedCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := retry.Do(
		c.connect,
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(defaultReconnectDelay),
		retry.MaxDelay(defaultMaxReconnectDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("reconnect failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return err
	}

	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
	return nil
}

// Channel возвращает текущий канал или nil.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сообщает о восстановленном соединении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil
}

// WithChannel выполняет fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil {
		return ErrNotConnected
	}
	return fn(ch)
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.closedCh != nil {
		close(c.closedCh)
	}

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}
