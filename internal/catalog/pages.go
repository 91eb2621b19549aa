package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/apiclient"
	"github.com/mmeshcher/clinic-portal/internal/model"
)

// ErrInvalidSlug возвращается для недопустимого идентификатора страницы.
var ErrInvalidSlug = errors.New("invalid page slug")

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// Pages загружает контентные страницы и хранит их до смены языка.
type Pages struct {
	api    API
	locale apiclient.LocaleSource
	logger *zap.Logger

	mu    sync.Mutex
	pages map[string]model.PageContent
}

// NewPages создаёт загрузчик контентных страниц.
func NewPages(api API, locale apiclient.LocaleSource, logger *zap.Logger) *Pages {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pages{
		api:    api,
		locale: locale,
		logger: logger,
		pages:  make(map[string]model.PageContent),
	}
}

// Get возвращает страницу slug на текущем языке.
func (p *Pages) Get(ctx context.Context, slug string) (model.PageContent, error) {
	if !slugPattern.MatchString(slug) {
		return model.PageContent{}, ErrInvalidSlug
	}

	locale := model.DefaultLocale
	if p.locale != nil {
		locale = p.locale.Locale()
	}
	key := string(locale) + ":" + slug

	p.mu.Lock()
	cached, ok := p.pages[key]
	p.mu.Unlock()
	if ok {
		return cached, nil
	}

	var data json.RawMessage
	if err := p.api.Get(ctx, "/pages/"+url.PathEscape(slug)+"/", &data); err != nil {
		p.logger.Error("get page error", zap.Error(err), zap.String("slug", slug))
		return model.PageContent{}, fmt.Errorf("get page %s: %w", slug, err)
	}

	page := model.PageContent{Slug: slug, Locale: locale, Data: data}

	p.mu.Lock()
	p.pages[key] = page
	p.mu.Unlock()

	return page, nil
}

// OnLocaleChange удаляет страницы, загруженные на других языках.
func (p *Pages) OnLocaleChange(l model.Locale) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for k, v := range p.pages {
		if v.Locale != l {
			delete(p.pages, k)
		}
	}
}
