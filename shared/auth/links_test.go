package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizworx/bizworx-api/shared/auth"
)

func TestLinkRoundTrip(t *testing.T) {
	signer := auth.NewLinkSigner("secret", time.Hour)
	businessID, estimateID := uuid.New(), uuid.New()

	token, expires, err := signer.Sign(businessID, estimateID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, businessID, claims.BusinessID)
	assert.Equal(t, estimateID, claims.EstimateID)
}

func TestLinkRejectsForeignSecretAndExpiry(t *testing.T) {
	token, _, err := auth.NewLinkSigner("secret", time.Hour).Sign(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = auth.NewLinkSigner("other", time.Hour).Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidLink)

	expired, _, err := auth.NewLinkSigner("secret", -time.Minute).Sign(uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = auth.NewLinkSigner("secret", time.Hour).Parse(expired)
	assert.ErrorIs(t, err, auth.ErrInvalidLink)

	_, err = auth.NewLinkSigner("secret", time.Hour).Parse("not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidLink)
}
