// Package verify implements bio-code ownership checks for platforms that
// have no OAuth flow.
package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CodePrefix starts every issued verification code.
const CodePrefix = "CONSO-"

const codeHexLen = 10

// VerifyCode reports whether code appears (case-insensitive) anywhere in the
// profile text. An empty code never verifies.
func VerifyCode(profileText, code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	return strings.Contains(strings.ToLower(profileText), strings.ToLower(code))
}

// IssueCode derives the code a subject (wallet or session id) must place in
// their bio. The same secret and subject always yield the same code.
func IssueCode(secret []byte, subject string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(subject))))
	sum := hex.EncodeToString(mac.Sum(nil))
	return CodePrefix + strings.ToUpper(sum[:codeHexLen])
}
