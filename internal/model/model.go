// Package model содержит доменные сущности клиентского слоя портала клиники.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Locale описывает язык интерфейса.
type Locale string

const (
	LocaleRu Locale = "ru"
	LocaleUz Locale = "uz"
	LocaleEn Locale = "en"
)

// DefaultLocale используется при первом запуске и при повреждённых данных.
const DefaultLocale = LocaleRu

// Locales перечисляет поддерживаемые языки в порядке приоритета.
var Locales = []Locale{LocaleRu, LocaleUz, LocaleEn}

var localeMatcher = language.NewMatcher([]language.Tag{
	language.Russian,
	language.Uzbek,
	language.English,
})

// ParseLocale приводит BCP-47 тег (ru-RU, uz-Latn-UZ) к поддерживаемому языку.
func ParseLocale(s string) (Locale, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	tag, err := language.Parse(s)
	if err != nil {
		return "", false
	}

	_, idx, conf := localeMatcher.Match(tag)
	if conf < language.High {
		return "", false
	}

	return Locales[idx], true
}

// Valid сообщает, входит ли язык в список поддерживаемых.
func (l Locale) Valid() bool {
	for _, v := range Locales {
		if v == l {
			return true
		}
	}
	return false
}

// Theme описывает тему оформления.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// DefaultTheme используется, если сохранённой темы нет.
const DefaultTheme = ThemeLight

// Themes перечисляет допустимые темы.
var Themes = []Theme{ThemeLight, ThemeDark}

// Valid сообщает, поддерживается ли тема.
func (t Theme) Valid() bool {
	for _, v := range Themes {
		if v == t {
			return true
		}
	}
	return false
}

// User описывает профиль пациента, возвращаемый API.
type User struct {
	ID         int64  `json:"id,omitempty"`
	Phone      string `json:"phone,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Session содержит токен доступа и закэшированный профиль.
type Session struct {
	Token     string     `json:"token,omitempty"`
	TokenType string     `json:"token_type,omitempty"`
	User      *User      `json:"user,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Authenticated возвращает true, если токен присутствует и не истёк.
func (s Session) Authenticated(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return false
	}
	return true
}

// Doctor описывает врача из каталога.
type Doctor struct {
	ID         int64   `json:"id"`
	FullName   string  `json:"full_name"`
	Specialty  string  `json:"specialty,omitempty"`
	Experience int     `json:"experience,omitempty"`
	Photo      string  `json:"photo,omitempty"`
	Rating     float64 `json:"rating,omitempty"`
	Slug       string  `json:"slug,omitempty"`
}

// Partner описывает партнёра клиники.
type Partner struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Logo  string `json:"logo,omitempty"`
	Link  string `json:"link,omitempty"`
	Order int    `json:"order,omitempty"`
}

// Review описывает отзыв пациента.
type Review struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Rating    int       `json:"rating,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Page описывает страницу постраничной коллекции на стороне API.
type Page[T any] struct {
	Items       []T `json:"results"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// CollectionStatus описывает состояние загрузки коллекции.
type CollectionStatus string

const (
	StatusIdle    CollectionStatus = "idle"
	StatusLoading CollectionStatus = "loading"
	StatusLoaded  CollectionStatus = "loaded"
	StatusErrored CollectionStatus = "errored"
)

// CollectionState описывает снимок состояния удалённой коллекции.
type CollectionState[T any] struct {
	Items       []T              `json:"items"`
	CurrentPage int              `json:"current_page"`
	TotalPages  int              `json:"total_pages"`
	Loading     bool             `json:"loading"`
	Error       string           `json:"error,omitempty"`
	Status      CollectionStatus `json:"status"`
}

// PageContent содержит данные контентной страницы, например политики конфиденциальности.
type PageContent struct {
	Slug   string          `json:"slug"`
	Locale Locale          `json:"locale"`
	Data   json.RawMessage `json:"data"`
}
