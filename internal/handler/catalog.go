package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/apiclient"
	"github.com/mmeshcher/clinic-portal/internal/catalog"
	"github.com/mmeshcher/clinic-portal/internal/model"
)

// collection описывает операции хранилища коллекции, доступные через BFF.
type collection[T any] interface {
	SetPage(n int)
	SetFilters(filters map[string]string)
	Fetch(ctx context.Context) model.CollectionState[T]
	LoadMore(ctx context.Context) model.CollectionState[T]
	Reset()
}

// Параметры строки запроса, которые не являются фильтрами.
const (
	queryPage = "page"
	queryMore = "more"
)

// listCollection загружает страницу коллекции. Параметр more=1 догружает
// следующую страницу, остальные параметры передаются в API как фильтры.
// Запрос more=1 без фильтров продолжает список с текущими фильтрами.
func listCollection[T any](h *Handler, c collection[T], view func(model.CollectionState[T]) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		more := q.Get(queryMore) == "1"

		filters := make(map[string]string)
		for k := range q {
			if k == queryPage || k == queryMore {
				continue
			}
			if v := q.Get(k); v != "" {
				filters[k] = v
			}
		}
		if !more || len(filters) > 0 {
			c.SetFilters(filters)
		}

		var st model.CollectionState[T]
		if more {
			st = c.LoadMore(r.Context())
		} else {
			if raw := q.Get(queryPage); raw != "" {
				page, err := strconv.Atoi(raw)
				if err != nil {
					h.writeError(w, http.StatusBadRequest, "invalid page")
					return
				}
				c.SetPage(page)
			}
			st = c.Fetch(r.Context())
		}

		status := http.StatusOK
		if st.Status == model.StatusErrored {
			status = http.StatusBadGateway
		}
		h.writeJSON(w, status, view(st))
	}
}

func resetCollection[T any](c collection[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.Reset()
		w.WriteHeader(http.StatusNoContent)
	}
}

type doctorsResponse struct {
	model.CollectionState[model.Doctor]
	Main     *model.Doctor  `json:"main,omitempty"`
	Featured []model.Doctor `json:"featured"`
	Rest     []model.Doctor `json:"rest"`
}

func (h *Handler) doctorsView(st model.CollectionState[model.Doctor]) any {
	resp := doctorsResponse{
		CollectionState: st,
		Featured:        h.catalog.Doctors.Featured(),
		Rest:            h.catalog.Doctors.Rest(),
	}
	if d, ok := h.catalog.Doctors.MainDoctor(); ok {
		resp.Main = &d
	}
	return resp
}

type partnersResponse struct {
	model.CollectionState[model.Partner]
	Top []model.Partner `json:"top"`
}

func (h *Handler) partnersView(st model.CollectionState[model.Partner]) any {
	return partnersResponse{CollectionState: st, Top: h.catalog.Partners.Top()}
}

func reviewsView(st model.CollectionState[model.Review]) any {
	return st
}

// GetPage возвращает контентную страницу на текущем языке.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	page, err := h.catalog.Pages.Get(r.Context(), slug)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrInvalidSlug):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case apiclient.IsStatus(err, http.StatusNotFound):
			h.writeError(w, http.StatusNotFound, "")
		default:
			h.logger.Error("get page error", zap.Error(err), zap.String("slug", slug))
			h.writeError(w, http.StatusBadGateway, "")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}
