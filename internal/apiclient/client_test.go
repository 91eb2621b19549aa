package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/clinic-portal/internal/model"
)

type fixedLocale model.Locale

func (f fixedLocale) Locale() model.Locale { return model.Locale(f) }

type fixedTokens struct {
	tokenType string
	token     string
}

func (f fixedTokens) Credentials() (string, string) { return f.tokenType, f.token }

type echo struct {
	Name string `json:"name"`
}

func TestGet_SendsLanguageAndDecodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/doctors/" {
			t.Errorf("path = %s, want /doctors/", r.URL.Path)
		}
		if got := r.Header.Get("X-Language"); got != "uz" {
			t.Errorf("X-Language = %q, want uz", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("X-Request-ID missing")
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("Authorization must not be sent without WithAuth")
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("page = %q, want 2", r.URL.Query().Get("page"))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(echo{Name: "ok"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL+"/", time.Second, fixedLocale(model.LocaleUz))
	client.SetTokenSource(fixedTokens{token: "secret"})

	var out echo
	err := client.Get(context.Background(), "/doctors/", &out, WithQuery(url.Values{"page": {"2"}}))
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Name)
}

func TestDo_WithAuthAttachesToken(t *testing.T) {
	tests := []struct {
		name   string
		tokens TokenSource
		want   string
	}{
		{name: "bearer default", tokens: fixedTokens{token: "abc"}, want: "Bearer abc"},
		{name: "custom type", tokens: fixedTokens{tokenType: "Token", token: "abc"}, want: "Token abc"},
		{name: "no token", tokens: fixedTokens{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusNoContent)
			}))
			defer ts.Close()

			client := NewClient(ts.URL, time.Second, nil)
			client.SetTokenSource(tt.tokens)

			err := client.Post(context.Background(), "auth/logout/", nil, nil, WithAuth())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDo_DefaultLocaleWithoutSource(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Language")
	}))
	defer ts.Close()

	client := NewClient(ts.URL, time.Second, nil)
	require.NoError(t, client.Get(context.Background(), "/", nil))
	assert.Equal(t, "ru", got)
}

func TestPut_SendsJSONBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in echo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(echo{Name: in.Name + "!"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, time.Second, nil)

	var out echo
	require.NoError(t, client.Put(context.Background(), "/auth/user/", echo{Name: "hi"}, &out))
	assert.Equal(t, "hi!", out.Name)
}

func TestDo_StatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"bad code"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, time.Second, nil)

	err := client.Post(context.Background(), "/auth/verify-otp/", map[string]string{"code": "1"}, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.False(t, IsStatus(err, http.StatusUnauthorized))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Body, "bad code")
}

func TestDo_DecodeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, time.Second, nil)

	var out echo
	err := client.Get(context.Background(), "/", &out)
	assert.Error(t, err)
	assert.False(t, IsStatus(err, http.StatusOK))
}

func TestDo_SingleAttempt(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, time.Second, nil)

	err := client.Get(context.Background(), "/", nil)
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	assert.Equal(t, 1, calls)
}

func TestDo_NotConfigured(t *testing.T) {
	var nilClient *Client
	assert.Error(t, nilClient.Get(context.Background(), "/", nil))

	assert.Error(t, NewClient("", time.Second, nil).Get(context.Background(), "/", nil))
}

func TestNewClient_AddsScheme(t *testing.T) {
	c := NewClient("api.clinic.uz/v1/", 0, nil)
	assert.Equal(t, "http://api.clinic.uz/v1", c.baseURL)
	assert.Equal(t, 10*time.Second, c.httpClient.Timeout)
}
