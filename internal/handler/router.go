package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/clinic-portal/internal/middleware"
	"github.com/mmeshcher/clinic-portal/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware BFF.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(bindNavigation)

	r.Route("/api", func(r chi.Router) {
		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", h.GetPreferences)
			r.Put("/", h.UpdatePreferences)
			r.Post("/locale/toggle", h.ToggleLocale)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/otp/send", h.SendOTP)
			r.Post("/otp/verify", h.VerifyOTP)
			r.Post("/logout", h.Logout)
		})

		r.Route("/account", func(r chi.Router) {
			r.Use(h.guard)

			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)
		})

		if h.catalog != nil {
			r.Get("/doctors", listCollection(h, h.catalog.Doctors, h.doctorsView))
			r.Delete("/doctors", resetCollection[model.Doctor](h.catalog.Doctors))
			r.Get("/partners", listCollection(h, h.catalog.Partners, h.partnersView))
			r.Delete("/partners", resetCollection[model.Partner](h.catalog.Partners))
			r.Get("/reviews", listCollection(h, h.catalog.Reviews, reviewsView))
			r.Delete("/reviews", resetCollection[model.Review](h.catalog.Reviews))
			r.Get("/pages/{slug}", h.GetPage)
		}

		r.With(h.formLimit).Post("/forms", h.SubmitForm)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
