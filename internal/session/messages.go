package session

import "github.com/mmeshcher/clinic-portal/internal/model"

type messageKey int

const (
	msgSendFailed messageKey = iota
	msgInvalidCode
	msgVerifyFailed
	msgPhoneRequired
)

var messages = map[messageKey]map[model.Locale]string{
	msgSendFailed: {
		model.LocaleRu: "Не удалось отправить код. Попробуйте позже.",
		model.LocaleUz: "Kodni yuborib bo'lmadi. Keyinroq urinib ko'ring.",
		model.LocaleEn: "Failed to send the code. Please try again later.",
	},
	msgInvalidCode: {
		model.LocaleRu: "Неверный код подтверждения.",
		model.LocaleUz: "Tasdiqlash kodi noto'g'ri.",
		model.LocaleEn: "Invalid verification code.",
	},
	msgVerifyFailed: {
		model.LocaleRu: "Не удалось выполнить вход. Попробуйте позже.",
		model.LocaleUz: "Tizimga kirib bo'lmadi. Keyinroq urinib ko'ring.",
		model.LocaleEn: "Failed to sign in. Please try again later.",
	},
	msgPhoneRequired: {
		model.LocaleRu: "Укажите номер телефона.",
		model.LocaleUz: "Telefon raqamini kiriting.",
		model.LocaleEn: "Enter a phone number.",
	},
}

func localize(key messageKey, locale model.Locale) string {
	byLocale := messages[key]
	if msg, ok := byLocale[locale]; ok {
		return msg
	}
	return byLocale[model.DefaultLocale]
}
