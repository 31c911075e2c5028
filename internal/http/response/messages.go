package response

import (
	"net/http"

	"golang.org/x/text/language"
)

var (
	supportedLanguages = []language.Tag{language.English, language.Turkish}
	languageMatcher    = language.NewMatcher(supportedLanguages)
)

var messages = map[string][2]string{
	"VALIDATION_ERROR":   {"The request is invalid.", "İstek geçersiz."},
	"EXPIRED_OTP":        {"The verification code has expired. Please request a new one.", "Doğrulama kodunun süresi doldu. Lütfen yeni bir kod isteyin."},
	"INVALID_OTP":        {"The verification code is incorrect.", "Doğrulama kodu hatalı."},
	"TOO_MANY_ATTEMPTS":  {"Too many incorrect attempts. Please request a new code.", "Çok fazla hatalı deneme. Lütfen yeni bir kod isteyin."},
	"INVALID_TOKEN":      {"Your session is invalid. Please sign in again.", "Oturumunuz geçersiz. Lütfen tekrar giriş yapın."},
	"USER_NOT_FOUND":     {"The account could not be found.", "Hesap bulunamadı."},
	"UNAUTHORIZED":       {"Authentication is required.", "Kimlik doğrulaması gerekli."},
	"DELIVERY_FAILED":    {"The verification code could not be sent. Please try again.", "Doğrulama kodu gönderilemedi. Lütfen tekrar deneyin."},
	"STORE_UNAVAILABLE":  {"The service is temporarily unavailable. Please try again.", "Hizmet geçici olarak kullanılamıyor. Lütfen tekrar deneyin."},
	"RATE_LIMITED":       {"Too many requests. Please wait and try again.", "Çok fazla istek. Lütfen bekleyip tekrar deneyin."},
	"ROLE_ALREADY_SET":   {"A role has already been selected for this account.", "Bu hesap için zaten bir rol seçildi."},
	"DEPENDENCY_UNREADY": {"Dependencies are not ready.", "Bağımlılıklar hazır değil."},
	"NOT_FOUND":          {"The resource was not found.", "Kaynak bulunamadı."},
	"INTERNAL_ERROR":     {"Something went wrong. Please try again.", "Bir hata oluştu. Lütfen tekrar deneyin."},
}

// Message returns the user facing message for code in the language the
// request prefers. English is the fallback.
func Message(r *http.Request, code string) string {
	m, ok := messages[code]
	if !ok {
		m = messages["INTERNAL_ERROR"]
	}
	if preferredLanguage(r) == language.Turkish {
		return m[1]
	}
	return m[0]
}

// Fail writes an error envelope with the localized message for code.
func Fail(w http.ResponseWriter, r *http.Request, status int, code string, details any) {
	w.Header().Set("Content-Language", preferredLanguage(r).String())
	Error(w, r, status, code, Message(r, code), details)
}

func preferredLanguage(r *http.Request) language.Tag {
	if r == nil {
		return language.English
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := languageMatcher.Match(tags...)
	return supportedLanguages[idx]
}
