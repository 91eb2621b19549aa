// Package catalog собирает хранилища каталогов клиники (врачи, партнёры, отзывы)
// и загрузку контентных страниц.
package catalog

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/apiclient"
	"github.com/mmeshcher/clinic-portal/internal/model"
	"github.com/mmeshcher/clinic-portal/internal/resource"
)

// Пути коллекций в API.
const (
	PathDoctors  = "/doctors/"
	PathPartners = "/partners/"
	PathReviews  = "/reviews/"
)

const (
	featuredDoctors = 4
	topPartners     = 6
)

// API описывает подмножество HTTP-клиента, нужное каталогу.
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
}

// NewFetcher возвращает загрузчик страниц коллекции по пути path.
func NewFetcher[T any](api API, path string) resource.Fetcher[T] {
	return func(ctx context.Context, q resource.Query) (model.Page[T], error) {
		var page model.Page[T]
		if err := api.Get(ctx, path, &page, apiclient.WithQuery(q.Values())); err != nil {
			return model.Page[T]{}, fmt.Errorf("fetch %s: %w", path, err)
		}
		if page.Items == nil {
			page.Items = []T{}
		}
		return page, nil
	}
}

// Doctors хранит список врачей.
type Doctors struct {
	*resource.Store[model.Doctor]
}

// MainDoctor возвращает первого врача списка (главный блок страницы).
func (d *Doctors) MainDoctor() (model.Doctor, bool) {
	return d.Main()
}

// Featured возвращает врачей для верхнего блока.
func (d *Doctors) Featured() []model.Doctor {
	return d.First(featuredDoctors)
}

// Rest возвращает врачей после верхнего блока.
func (d *Doctors) Rest() []model.Doctor {
	return d.Range(featuredDoctors, math.MaxInt)
}

// Partners хранит список партнёров.
type Partners struct {
	*resource.Store[model.Partner]
}

// Top возвращает партнёров для главной страницы.
func (p *Partners) Top() []model.Partner {
	return p.First(topPartners)
}

// Reviews хранит отзывы.
type Reviews struct {
	*resource.Store[model.Review]
}

// Slides возвращает первые n отзывов для слайдера.
func (r *Reviews) Slides(n int) []model.Review {
	return r.First(n)
}

// Options содержит общие параметры хранилищ каталога.
type Options struct {
	Locale   apiclient.LocaleSource
	Cache    resource.Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Catalog объединяет все хранилища каталога.
type Catalog struct {
	Doctors  *Doctors
	Partners *Partners
	Reviews  *Reviews
	Pages    *Pages
}

// New создаёт каталог поверх API.
func New(api API, opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Catalog{
		Doctors: &Doctors{resource.NewStore(resource.Config[model.Doctor]{
			Name:     "doctors",
			Fetcher:  NewFetcher[model.Doctor](api, PathDoctors),
			Locale:   opts.Locale,
			Logger:   opts.Logger,
			Key:      func(d model.Doctor) string { return fmt.Sprint(d.ID) },
			Cache:    opts.Cache,
			CacheTTL: opts.CacheTTL,
		})},
		Partners: &Partners{resource.NewStore(resource.Config[model.Partner]{
			Name:     "partners",
			Fetcher:  NewFetcher[model.Partner](api, PathPartners),
			Locale:   opts.Locale,
			Logger:   opts.Logger,
			Key:      func(p model.Partner) string { return fmt.Sprint(p.ID) },
			Cache:    opts.Cache,
			CacheTTL: opts.CacheTTL,
		})},
		Reviews: &Reviews{resource.NewStore(resource.Config[model.Review]{
			Name:    "reviews",
			Fetcher: NewFetcher[model.Review](api, PathReviews),
			Locale:  opts.Locale,
			Logger:  opts.Logger,
			Key:     func(r model.Review) string { return fmt.Sprint(r.ID) },
		})},
		Pages: NewPages(api, opts.Locale, opts.Logger),
	}
}

// OnLocaleChange инвалидирует все данные, зависящие от языка.
func (c *Catalog) OnLocaleChange(l model.Locale) {
	c.Doctors.OnLocaleChange(l)
	c.Partners.OnLocaleChange(l)
	c.Reviews.OnLocaleChange(l)
	c.Pages.OnLocaleChange(l)
}

// Close останавливает фоновые загрузки.
func (c *Catalog) Close() {
	c.Doctors.Close()
	c.Partners.Close()
	c.Reviews.Close()
}
