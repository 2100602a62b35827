package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureRendersExpectedObserved(t *testing.T) {
	c := Failure("pkce-s256", "PKCE code verifier", "a code_verifier", "nothing", RefRFC7636)

	assert.Equal(t, StatusFailure, c.Status)
	assert.Equal(t, "expected a code_verifier; observed nothing", c.Description)
	assert.Equal(t, "a code_verifier", c.Details["expected"])
	assert.Equal(t, "nothing", c.Details["observed"])
	require.Len(t, c.SpecReferences, 1)
	assert.Equal(t, "RFC 7636: PKCE", c.SpecReferences[0].Title)
	assert.False(t, c.Timestamp.IsZero())
}

func TestWarningIsFailureShaped(t *testing.T) {
	c := Warning("scope-selection", "Scope selection", "scope a", "scope b")
	assert.Equal(t, StatusWarning, c.Status)
	assert.NotEmpty(t, c.ErrorMessage)
}

func TestWithDetailDoesNotMutateOriginal(t *testing.T) {
	base := Success("id", "name", "desc")
	withDetail := base.WithDetail("path", "/authorize")

	assert.Nil(t, base.Details)
	assert.Equal(t, "/authorize", withDetail.Details["path"])

	second := withDetail.WithDetail("ordinal", 2)
	assert.Len(t, withDetail.Details, 1)
	assert.Len(t, second.Details, 2)
}

func TestInfoAndSkipped(t *testing.T) {
	assert.Equal(t, StatusInfo, Info("id", "n", "d").Status)
	assert.Equal(t, StatusSkipped, Skipped("id", "n", "not applicable").Status)
}
