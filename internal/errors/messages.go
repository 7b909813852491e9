package errors

import (
	"golang.org/x/text/language"
)

var supportedLanguages = []language.Tag{
	language.English,
	language.Thai,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// user-facing messages per code, indexed like supportedLanguages
var messageCatalog = map[Code][]string{
	CodeInvalidCredentials: {
		"Incorrect username or password",
		"ชื่อผู้ใช้หรือรหัสผ่านไม่ถูกต้อง",
	},
	CodeAuthError: {
		"Authentication failed. Please sign in again.",
		"การยืนยันตัวตนล้มเหลว กรุณาเข้าสู่ระบบอีกครั้ง",
	},
	CodeUnknownError: {
		"Something went wrong. Please try again later.",
		"เกิดข้อผิดพลาด กรุณาลองใหม่อีกครั้งภายหลัง",
	},
}

// Language picks the best supported language for an Accept-Language header value.
// It returns the base language code ("en" or "th").
func Language(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return "en"
	}
	_, idx, _ := languageMatcher.Match(tags...)
	base, _ := supportedLanguages[idx].Base()
	return base.String()
}

// Message returns the localized user-facing message for a code.
// Unknown codes fall back to UNKNOWN_ERROR, unknown languages to English.
func Message(code Code, lang string) string {
	msgs, ok := messageCatalog[code]
	if !ok {
		msgs = messageCatalog[CodeUnknownError]
	}
	for i, tag := range supportedLanguages {
		if base, _ := tag.Base(); base.String() == lang {
			return msgs[i]
		}
	}
	return msgs[0]
}
