// Package apiclient предоставляет общий HTTP-клиент для внешнего API клиники.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/clinic-portal/internal/model"
)

const (
	headerLanguage  = "X-Language"
	headerRequestID = "X-Request-ID"
	maxErrorBody    = 4 << 10
)

// LocaleSource отдаёт текущий язык для заголовка X-Language.
type LocaleSource interface {
	Locale() model.Locale
}

// TokenSource отдаёт текущий токен доступа. Пустой token означает отсутствие сессии.
type TokenSource interface {
	Credentials() (tokenType, token string)
}

// StatusError возвращается, если API ответил статусом вне диапазона 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

// IsStatus сообщает, что err является StatusError с указанным кодом.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client инкапсулирует HTTP-взаимодействие с внешним API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	locale     LocaleSource
	tokens     TokenSource
}

// NewClient создаёт клиент для обращения к API по указанному адресу.
func NewClient(baseURL string, timeout time.Duration, locale LocaleSource) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		locale: locale,
	}
}

// SetTokenSource задаёт источник токена для запросов с WithAuth.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

type requestOptions struct {
	auth  bool
	query url.Values
}

// RequestOption настраивает отдельный запрос.
type RequestOption func(*requestOptions)

// WithAuth добавляет заголовок Authorization, если токен есть.
func WithAuth() RequestOption {
	return func(o *requestOptions) {
		o.auth = true
	}
}

// WithQuery добавляет параметры строки запроса.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		o.query = q
	}
}

// Get выполняет GET-запрос и декодирует ответ в out.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post выполняет POST-запрос с JSON-телом.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Put выполняет PUT-запрос с JSON-телом.
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

// Do выполняет одну попытку запроса. Повторов нет: ошибку обрабатывает вызывающий.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("api client not configured")
	}

	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(o.query) > 0 {
		target += "?" + o.query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	locale := model.DefaultLocale
	if c.locale != nil {
		locale = c.locale.Locale()
	}
	req.Header.Set(headerLanguage, string(locale))

	if o.auth && c.tokens != nil {
		if tokenType, token := c.tokens.Credentials(); token != "" {
			if tokenType == "" {
				tokenType = "Bearer"
			}
			req.Header.Set("Authorization", tokenType+" "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
