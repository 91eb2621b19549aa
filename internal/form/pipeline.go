package form

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/apiclient"
)

// PathForms задаёт общий endpoint приёма заявок.
const PathForms = "/forms/"

// FieldPageURL содержит адрес страницы, с которой отправлена форма.
const FieldPageURL = "page_url"

// UTMKeys перечисляет UTM-параметры, которые переносятся в заявку.
var UTMKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term"}

// ValidationError возвращается, если отправка заблокирована ошибками полей.
type ValidationError struct {
	Errors Errors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("form validation failed: %s", strings.Join(e.Errors.Failed(), ", "))
}

// API описывает подмножество HTTP-клиента, нужное конвейеру.
type API interface {
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
}

// Pipeline проверяет и отправляет формы.
type Pipeline struct {
	api       API
	validator *Validator
	logger    *zap.Logger
}

// NewPipeline создаёт конвейер со схемой по умолчанию.
func NewPipeline(api API, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		api:       api,
		validator: NewValidator(DefaultSchema()),
		logger:    logger,
	}
}

// Validate проверяет поля формы.
func (p *Pipeline) Validate(fields Fields) Errors {
	return p.validator.Validate(fields)
}

// BuildPayload объединяет поля формы с UTM-метками из pageURL.
// Явно заполненные поля имеют приоритет, пустые значения не передаются,
// согласие на обработку данных в payload не входит.
func BuildPayload(fields Fields, pageURL string) map[string]string {
	payload := make(map[string]string, len(fields)+len(UTMKeys)+1)

	if u, err := url.Parse(pageURL); err == nil {
		q := u.Query()
		for _, k := range UTMKeys {
			if v := strings.TrimSpace(q.Get(k)); v != "" {
				payload[k] = v
			}
		}
	}

	for k, v := range fields {
		if k == FieldConsent {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			payload[k] = v
		}
	}

	if pageURL = strings.TrimSpace(pageURL); pageURL != "" {
		payload[FieldPageURL] = pageURL
	}

	return payload
}

// Submit отправляет payload одним POST-запросом.
func (p *Pipeline) Submit(ctx context.Context, payload map[string]string) error {
	if err := p.api.Post(ctx, PathForms, payload, nil); err != nil {
		p.logger.Error("submit form error", zap.Error(err))
		return fmt.Errorf("submit form: %w", err)
	}
	return nil
}

// Send проверяет форму и, если ошибок нет, отправляет её. При ошибках запрос не выполняется.
func (p *Pipeline) Send(ctx context.Context, fields Fields, pageURL string) error {
	if errs := p.Validate(fields); errs.Any() {
		return &ValidationError{Errors: errs}
	}
	return p.Submit(ctx, BuildPayload(fields, pageURL))
}
