package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docfeedback/internal/feedback"
)

func newTestNonces(t *testing.T, now *time.Time) *Nonces {
	t.Helper()
	n, err := NewNonces([]byte("secret"), "document-feedback")
	require.NoError(t, err)
	n.now = func() time.Time { return *now }
	return n
}

func TestNonces_IssueAndVerify(t *testing.T) {
	now := time.Date(2026, 6, 1, 1, 0, 0, 0, time.UTC)
	n := newTestNonces(t, &now)
	r := feedback.Respondent{ID: 42, SessionID: "sess-a"}

	token := n.Issue(r)
	assert.NotEmpty(t, token)
	assert.True(t, n.VerifyToken(r, token))

	assert.False(t, n.VerifyToken(feedback.Respondent{ID: 43, SessionID: "sess-a"}, token), "other respondent")
	assert.False(t, n.VerifyToken(feedback.Respondent{ID: 42, SessionID: "sess-b"}, token), "other session")
	assert.False(t, n.VerifyToken(r, ""))
	assert.False(t, n.VerifyToken(r, token+"x"))
}

func TestNonces_Lifetime(t *testing.T) {
	now := time.Date(2026, 6, 1, 1, 0, 0, 0, time.UTC)
	n := newTestNonces(t, &now)
	r := feedback.Respondent{ID: 7, SessionID: "s"}
	token := n.Issue(r)

	now = now.Add(NonceTick)
	assert.True(t, n.VerifyToken(r, token), "previous tick still valid")

	now = now.Add(NonceTick)
	assert.False(t, n.VerifyToken(r, token), "two ticks later expired")
}

func TestNonces_BoundToActionAndSecret(t *testing.T) {
	now := time.Date(2026, 6, 1, 1, 0, 0, 0, time.UTC)
	r := feedback.Respondent{ID: 7, SessionID: "s"}
	token := newTestNonces(t, &now).Issue(r)

	other, err := NewNonces([]byte("secret"), "other-action")
	require.NoError(t, err)
	other.now = func() time.Time { return now }
	assert.False(t, other.VerifyToken(r, token))

	rotated, err := NewNonces([]byte("rotated"), "document-feedback")
	require.NoError(t, err)
	rotated.now = func() time.Time { return now }
	assert.False(t, rotated.VerifyToken(r, token))
}
