package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/shaiso/squll/internal/domain"
	"github.com/shaiso/squll/internal/telemetry"
)

// Default configuration values.
const (
	defaultTimeout       = 20 * time.Second
	defaultSubmitRetries = 3
	defaultRetryDelay    = time.Second
)

// Client — HTTP-клиент сервиса очереди (/get_work, /put_work).
type Client struct {
	baseURL    string
	httpClient *http.Client
	identity   domain.Identity
	host       domain.HostInfo

	submitRetries int
	retryDelay    time.Duration

	logger *slog.Logger
}

// Config — конфигурация Client.
type Config struct {
	// Server — адрес сервиса; без схемы подразумевается http://.
	Server string

	Identity domain.Identity
	Host     domain.HostInfo

	// Timeout — таймаут одного HTTP-запроса (default: 20s).
	Timeout time.Duration

	// SubmitRetries — попыток put_work (default: 3).
	SubmitRetries int

	// RetryDelay — начальная задержка между попытками put_work (default: 1s).
	RetryDelay time.Duration

	// HTTPClient (опционально; если nil — создаётся с Timeout).
	HTTPClient *http.Client

	Logger *slog.Logger
}

// NewClient создаёт клиент очереди.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	retries := cfg.SubmitRetries
	if retries <= 0 {
		retries = defaultSubmitRetries
	}

	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:       normalizeServer(cfg.Server),
		httpClient:    httpClient,
		identity:      cfg.Identity,
		host:          cfg.Host,
		submitRetries: retries,
		retryDelay:    delay,
		logger:        logger,
	}
}

func normalizeServer(server string) string {
	server = strings.TrimRight(server, "/")
	if server != "" && !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return server
}

// GetWork запрашивает один task.
//
// Ошибки: ErrNoWork (работы нет), ErrServer (сервер вернул error),
// ErrTransport (сервер недоступен), ErrProtocol (ответ не разобран).
func (c *Client) GetWork(ctx context.Context) (*domain.Task, error) {
	task, err := c.getWork(ctx)
	telemetry.QueueRequests.WithLabelValues("get_work", outcome(err)).Inc()
	return task, err
}

func (c *Client) getWork(ctx context.Context) (*domain.Task, error) {
	body, err := json.Marshal(newWorkRequest(c.identity))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	c.logger.Debug("requesting work", "endpoint", c.baseURL+"/get_work")

	resp, err := c.do(ctx, http.MethodGet, "/get_work", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: get_work: HTTP %d", ErrTransport, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read get_work response: %v", ErrTransport, err)
	}

	return decodeTask(data)
}

// decodeTask разбирает ответ get_work.
func decodeTask(data []byte) (*domain.Task, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte("{}")) {
		return nil, fmt.Errorf("%w: empty task", ErrNoWork)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("%w: decode task: %v", ErrProtocol, err)
	}

	if task.Error != "" {
		if noWorkMessages[task.Error] {
			return nil, fmt.Errorf("%w: %s", ErrNoWork, task.Error)
		}
		return nil, fmt.Errorf("%w: %s", ErrServer, task.Error)
	}

	if task.DBMS == "" || task.Query == "" {
		return nil, fmt.Errorf("%w: task without dbms or query", ErrProtocol)
	}

	return &task, nil
}

// PutWork отправляет Result Set. Транспортные ошибки и 5xx повторяются
// до SubmitRetries раз; 4xx не повторяются.
func (c *Client) PutWork(ctx context.Context, task *domain.Task, results domain.ResultSet) error {
	payload := BuildPayload(c.identity, c.host, task, results)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode results: %v", ErrProtocol, err)
	}
	return c.PutRaw(ctx, body)
}

// PutRaw отправляет готовое тело put_work (например, сохранённый ранее результат).
func (c *Client) PutRaw(ctx context.Context, body []byte) error {
	err := retry.Do(
		func() error {
			return c.putOnce(ctx, body)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.submitRetries)),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("put_work failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	telemetry.QueueRequests.WithLabelValues("put_work", outcome(err)).Inc()
	return err
}

func (c *Client) putOnce(ctx context.Context, body []byte) error {
	resp, err := c.do(ctx, http.MethodPost, "/put_work", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: put_work: HTTP %d", ErrTransport, resp.StatusCode)
	default:
		return retry.Unrecoverable(fmt.Errorf("%w: put_work: HTTP %d", ErrServer, resp.StatusCode))
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return resp, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoWork):
		return "no_work"
	default:
		return "error"
	}
}
