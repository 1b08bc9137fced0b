package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"docfeedback/internal/feedback"
)

// NonceTick is the lifetime step of a nonce. A nonce verifies during the tick
// it was issued in and the one after.
const NonceTick = 12 * time.Hour

const nonceLen = 16

// Nonces issues and checks CSRF nonces bound to an action, a respondent and
// the respondent's session. The signing key is derived from the shared secret
// so nonces can never be replayed as bearer tokens.
type Nonces struct {
	key    []byte
	action string
	now    func() time.Time
}

// NewNonces derives the nonce key from secret.
func NewNonces(secret []byte, action string) (*Nonces, error) {
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte("docfeedback csrf nonce")), key); err != nil {
		return nil, fmt.Errorf("derive nonce key: %w", err)
	}
	return &Nonces{key: key, action: action, now: time.Now}, nil
}

// Issue returns the nonce for the respondent's current session.
func (n *Nonces) Issue(respondent feedback.Respondent) string {
	return n.nonce(respondent, n.tick(n.now()))
}

// VerifyToken accepts nonces of the current and the previous tick.
func (n *Nonces) VerifyToken(respondent feedback.Respondent, token string) bool {
	if token == "" {
		return false
	}
	tick := n.tick(n.now())
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(token), []byte(n.nonce(respondent, t))) {
			return true
		}
	}
	return false
}

func (n *Nonces) tick(t time.Time) int64 {
	return t.Unix() / int64(NonceTick/time.Second)
}

func (n *Nonces) nonce(respondent feedback.Respondent, tick int64) string {
	mac := hmac.New(sha256.New, n.key)
	_, _ = fmt.Fprintf(mac, "%s|%d|%s|%d", n.action, respondent.ID, respondent.SessionID, tick)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:nonceLen])
}
