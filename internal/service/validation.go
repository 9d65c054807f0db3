package service

import (
	"net/mail"
	"strings"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// normalizeEmail lower-cases a bare address. It rejects display names and anything net/mail cannot parse.
func normalizeEmail(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", false
	}
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 || !strings.Contains(trimmed[at+1:], ".") {
		return "", false
	}
	return strings.ToLower(trimmed), true
}

// normalizePhone strips common separators and keeps an optional leading plus.
func normalizePhone(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}
	phone := b.String()
	digits := len(strings.TrimPrefix(phone, "+"))
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", false
	}
	return phone, true
}
