package scraper

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	totpDigits   = 1000000 // 6-digit codes
	totpInterval = 30      // seconds per counter step
)

// decodeTOTPSecret normalizes a base32 authenticator secret: spaces removed,
// case folded, padding restored. Provisioning QR codes strip the padding.
func decodeTOTPSecret(secret string) ([]byte, error) {
	cleaned := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	if cleaned == "" {
		return nil, fmt.Errorf("totp secret is empty")
	}
	if missing := len(cleaned) % 8; missing != 0 {
		cleaned += strings.Repeat("=", 8-missing)
	}
	key, err := base32.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid base32 totp secret: %w", err)
	}
	return key, nil
}

// TOTPCodeAt computes the RFC 6238 code (HMAC-SHA1, 30-second step, 6
// digits) for the given instant.
func TOTPCodeAt(secret string, at time.Time) (string, error) {
	key, err := decodeTOTPSecret(secret)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(at.Unix())/totpInterval)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	digest := mac.Sum(nil)

	offset := digest[len(digest)-1] & 0x0F
	code := binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7FFFFFFF
	return fmt.Sprintf("%06d", code%totpDigits), nil
}

// TOTPCode computes the current authenticator code.
func TOTPCode(secret string) (string, error) {
	return TOTPCodeAt(secret, time.Now())
}
