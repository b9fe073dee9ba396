// Package identitykey normalizes identity keys and derives the canonical
// key used to stop two spellings of one mailbox from binding twice.
package identitykey

import (
	"fmt"
	"strings"

	"github.com/go-2fa-confirm/internal/domain"
	"golang.org/x/net/idna"
)

// Normalize case-folds an identity key and trims surrounding whitespace.
func Normalize(identityKey string) string {
	return strings.ToLower(strings.TrimSpace(identityKey))
}

// Unique returns the canonical identity for kinds that need one, nil otherwise.
func Unique(identityKey string, kind domain.MethodKind) (*string, error) {
	if kind != domain.MethodEmail {
		return nil, nil
	}
	u, err := UniqueEmail(identityKey)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UniqueEmail canonicalizes an address: "+tag" suffixes are dropped, and
// gmail addresses lose their dots and the googlemail alias.
func UniqueEmail(email string) (string, error) {
	email = Normalize(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", fmt.Errorf("malformed email address: %w", domain.ErrBadRequest)
	}
	local, host := email[:at], email[at+1:]

	host, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("malformed email domain: %w", domain.ErrBadRequest)
	}
	if i := strings.IndexByte(local, '+'); i >= 0 {
		local = local[:i]
	}
	if host == "gmail.com" || host == "googlemail.com" {
		local = strings.ReplaceAll(local, ".", "")
		host = "gmail.com"
	}
	if local == "" {
		return "", fmt.Errorf("malformed email address: %w", domain.ErrBadRequest)
	}
	return local + "@" + host, nil
}
