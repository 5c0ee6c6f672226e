package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-please-rotate")

func TestIssuer_RoundTrip(t *testing.T) {
	iss, err := NewIssuer(testSecret, "phasegate")
	require.NoError(t, err)

	token, err := iss.Issue("reviewer")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	actor, err := iss.ActorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", actor)
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	_, err := NewIssuer(nil, "phasegate")
	require.Error(t, err)
	_, err = NewIssuer([]byte{}, "phasegate")
	require.Error(t, err)
}

func TestIssue_RequiresActor(t *testing.T) {
	iss, err := NewIssuer(testSecret, "phasegate")
	require.NoError(t, err)

	_, err = iss.Issue("")
	require.Error(t, err)
}

func TestActorFromToken_WrongSecret(t *testing.T) {
	iss, err := NewIssuer(testSecret, "phasegate")
	require.NoError(t, err)
	other, err := NewIssuer([]byte("a-different-secret"), "phasegate")
	require.NoError(t, err)

	token, err := iss.Issue("reviewer")
	require.NoError(t, err)

	_, err = other.ActorFromToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid actor token")
}

func TestActorFromToken_WrongIssuer(t *testing.T) {
	signer, err := NewIssuer(testSecret, "someone-else")
	require.NoError(t, err)
	verifier, err := NewIssuer(testSecret, "phasegate")
	require.NoError(t, err)

	token, err := signer.Issue("reviewer")
	require.NoError(t, err)

	_, err = verifier.ActorFromToken(token)
	require.Error(t, err)
}

func TestActorFromToken_AudienceEnforced(t *testing.T) {
	plain, err := NewIssuer(testSecret, "phasegate")
	require.NoError(t, err)
	scoped, err := NewIssuer(testSecret, "phasegate", WithAudience("workflow-api"))
	require.NoError(t, err)

	token, err := plain.Issue("reviewer")
	require.NoError(t, err)
	_, err = scoped.ActorFromToken(token)
	require.Error(t, err, "token without the audience claim must be rejected")

	token, err = scoped.Issue("reviewer")
	require.NoError(t, err)
	actor, err := scoped.ActorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", actor)
}

func TestActorFromToken_Expiry(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	iss, err := NewIssuer(testSecret, "phasegate",
		WithTTL(10*time.Minute),
		WithClock(func() time.Time { return current }),
	)
	require.NoError(t, err)

	token, err := iss.Issue("reviewer")
	require.NoError(t, err)

	// Still valid just before expiry.
	current = current.Add(9 * time.Minute)
	actor, err := iss.ActorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", actor)

	// Rejected after expiry.
	current = current.Add(2 * time.Minute)
	_, err = iss.ActorFromToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestActorFromToken_MissingActorClaim(t *testing.T) {
	// A token signed with the right secret but without the actor claim.
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "phasegate",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)

	iss, err := NewIssuer(testSecret, "phasegate")
	require.NoError(t, err)
	_, err = iss.ActorFromToken(signed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no actor claim")
}

func TestActorFromToken_RejectsUnsignedAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Actor: "intruder"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	iss, err := NewIssuer(testSecret, "phasegate")
	require.NoError(t, err)
	_, err = iss.ActorFromToken(signed)
	require.Error(t, err)
}
