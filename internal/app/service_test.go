package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docfeedback/internal/auth"
	"docfeedback/internal/feedback"
)

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestSessionFromToken(t *testing.T) {
	env := newTestEnv(t, ServerOptions{}, nil)
	ctx := context.Background()

	claims := auth.NewClaims(env.reader, "Grace", time.Hour)
	token, err := auth.IssueToken(testSecret, claims)
	require.NoError(t, err)

	session, err := env.service.SessionFromToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, env.reader, session.Respondent.ID)
	assert.Equal(t, "Grace", session.Respondent.DisplayName)
	assert.Equal(t, claims.JTI, session.JTI)
	assert.Equal(t, claims.JTI, session.Respondent.SessionID)

	_, err = env.service.SessionFromToken(ctx, "not-a-token")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	ghost, err := auth.IssueToken(testSecret, auth.NewClaims(9999, "", time.Hour))
	require.NoError(t, err)
	_, err = env.service.SessionFromToken(ctx, ghost)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	other, err := auth.IssueToken([]byte("another-secret-0123456"), claims)
	require.NoError(t, err)
	_, err = env.service.SessionFromToken(ctx, other)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestServiceSubmitAnonymous(t *testing.T) {
	env := newTestEnv(t, ServerOptions{}, nil)
	res := env.service.Submit(context.Background(), nil, SubmitInput{
		DocumentID: env.page,
		Phase:      feedback.PhasePrompt,
		Choice:     feedback.ChoiceAccept,
	})
	assert.Equal(t, feedback.StatusError, res.Status)
	assert.Equal(t, feedback.KindUnauthenticated, res.Kind)
}

func TestPromptStateNonceChangesWithSession(t *testing.T) {
	env := newTestEnv(t, ServerOptions{}, nil)
	ctx := context.Background()

	first, err := env.service.SessionFromToken(ctx, env.token(t, env.reader))
	require.NoError(t, err)
	second, err := env.service.SessionFromToken(ctx, env.token(t, env.reader))
	require.NoError(t, err)

	s1, err := env.service.PromptState(ctx, first, env.page)
	require.NoError(t, err)
	s2, err := env.service.PromptState(ctx, second, env.page)
	require.NoError(t, err)
	assert.NotEqual(t, s1.CSRFToken, s2.CSRFToken)

	res := env.service.Submit(ctx, &second, SubmitInput{
		CSRFToken:  s1.CSRFToken,
		DocumentID: env.page,
		Phase:      feedback.PhasePrompt,
		Choice:     feedback.ChoiceAccept,
	})
	assert.Equal(t, feedback.KindInvalidToken, res.Kind)
}

func TestStatusFor(t *testing.T) {
	tbl := map[feedback.Kind]int{
		"":                              200,
		feedback.KindUnauthenticated:    401,
		feedback.KindInvalidToken:       403,
		feedback.KindForbidden:          403,
		feedback.KindInvalidDocument:    404,
		feedback.KindInvalidRecord:      404,
		feedback.KindAlreadyAnswered:    409,
		feedback.KindThrottled:          429,
		feedback.KindInvalidRequest:     422,
		feedback.KindPersistenceFailure: 500,
	}
	for kind, status := range tbl {
		assert.Equal(t, status, statusFor(kind), string(kind))
	}
}
