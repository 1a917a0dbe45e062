// Package auth issues and verifies the HS256 pairing tokens that gate the
// event distribution endpoints.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TokenTTL is how long a freshly signed pairing token stays valid.
const TokenTTL = 30 * 24 * time.Hour

// ErrInvalidToken is returned for every verification failure. Callers must
// not distinguish failure modes, so a probing client learns nothing from the
// error.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the pairing token payload. Sub carries the Google account subject
// the token was paired to.
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	Iat   int64  `json:"iat"`
	Exp   int64  `json:"exp"`
}

// Signer signs and verifies pairing tokens with a shared HMAC-SHA256 secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether a secret was configured. With no secret the signer
// refuses both signing and verification.
func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

// Sign issues a compact JWT for the given subject, valid for TokenTTL.
func (s *Signer) Sign(sub, email string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("pairing secret not configured")
	}
	if sub == "" {
		return "", errors.New("empty subject")
	}
	now := s.now()
	cl := Claims{Sub: sub, Email: email, Iat: now.Unix(), Exp: now.Add(TokenTTL).Unix()}
	payload, err := json.Marshal(cl)
	if err != nil {
		return "", err
	}
	hdr := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString(payload)
	input := hdr + "." + body
	return input + "." + s.sign(input), nil
}

// Verify checks the signature and expiry and returns the claims. Any failure
// yields ErrInvalidToken.
func (s *Signer) Verify(token string) (Claims, error) {
	if !s.Enabled() {
		return Claims{}, ErrInvalidToken
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalidToken
	}
	expected := s.sign(parts[0] + "." + parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return Claims{}, ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var cl Claims
	if err := json.Unmarshal(raw, &cl); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if cl.Sub == "" {
		return Claims{}, ErrInvalidToken
	}
	if cl.Exp != 0 && s.now().Unix() > cl.Exp {
		return Claims{}, ErrInvalidToken
	}
	return cl, nil
}

func (s *Signer) sign(input string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
