package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/form"
)

const maxFormBody = 64 << 10

type formErrorResponse struct {
	Error  string      `json:"error"`
	Fields form.Errors `json:"fields"`
}

// SubmitForm принимает заявку в JSON или application/x-www-form-urlencoded.
// Адрес страницы берётся из поля page_url, иначе из Referer.
func (h *Handler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)

	fields, err := readFields(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "")
		return
	}

	pageURL := fields[form.FieldPageURL]
	delete(fields, form.FieldPageURL)
	if pageURL == "" {
		pageURL = r.Referer()
	}

	err = h.forms.Send(r.Context(), fields, pageURL)
	var verr *form.ValidationError
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusCreated, authResponse{OK: true})
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusUnprocessableEntity, formErrorResponse{
			Error:  verr.Error(),
			Fields: verr.Errors,
		})
	default:
		h.logger.Error("submit form error", zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "")
	}
}

func readFields(r *http.Request) (form.Fields, error) {
	fields := make(form.Fields)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
		return fields, nil
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			fields[k] = val
		default:
			fields[k] = fmt.Sprint(val)
		}
	}
	return fields, nil
}
