// Package form реализует конвейер отправки форм: валидацию, сборку payload с UTM-метками
// и отправку в общий endpoint приёма заявок.
package form

import (
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Названия стандартных полей формы.
const (
	FieldName    = "name"
	FieldPhone   = "phone"
	FieldConsent = "consent"
)

const (
	countryCode       = "998"
	minPhoneDigits    = 9
	tagPhone          = "phone_digits"
	tagTruthy         = "truthy"
	defaultNameRule   = "required"
	defaultPhoneRule  = "required," + tagPhone
	defaultConsentTag = tagTruthy
)

// Fields содержит значения полей формы.
type Fields map[string]string

// Errors хранит признаки ошибки по полям. true означает, что поле не прошло проверку.
type Errors map[string]bool

// Any сообщает, есть ли хотя бы одна ошибка.
func (e Errors) Any() bool {
	for _, bad := range e {
		if bad {
			return true
		}
	}
	return false
}

// Failed возвращает отсортированный список полей с ошибками.
func (e Errors) Failed() []string {
	var res []string
	for f, bad := range e {
		if bad {
			res = append(res, f)
		}
	}
	sort.Strings(res)
	return res
}

// Schema задаёт правила validator для полей формы.
type Schema map[string]string

// DefaultSchema проверяет имя, телефон и согласие на обработку данных.
func DefaultSchema() Schema {
	return Schema{
		FieldName:    defaultNameRule,
		FieldPhone:   defaultPhoneRule,
		FieldConsent: defaultConsentTag,
	}
}

// Validator проверяет поля формы по схеме.
type Validator struct {
	v      *validator.Validate
	schema Schema
}

// NewValidator создаёт валидатор со схемой schema.
func NewValidator(schema Schema) *Validator {
	v := validator.New()
	_ = v.RegisterValidation(tagPhone, func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation(tagTruthy, func(fl validator.FieldLevel) bool {
		return truthy(fl.Field().String())
	})

	return &Validator{v: v, schema: schema}
}

// Validate синхронно проверяет все поля схемы и возвращает карту ошибок.
func (val *Validator) Validate(fields Fields) Errors {
	errs := make(Errors, len(val.schema))
	for field, rule := range val.schema {
		value := strings.TrimSpace(fields[field])
		errs[field] = val.v.Var(value, rule) != nil
	}
	return errs
}

// NormalizePhone оставляет только цифры и отбрасывает код страны 998,
// если номер записан полностью (12 цифр).
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) == len(countryCode)+minPhoneDigits && strings.HasPrefix(digits, countryCode) {
		digits = digits[len(countryCode):]
	}
	return digits
}

// ValidPhone проверяет, что после отбрасывания кода страны осталось не меньше 9 цифр.
func ValidPhone(phone string) bool {
	return len(NormalizePhone(phone)) >= minPhoneDigits
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
