package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got, err := Normalize("  Awa.Diallo@Example.ORG ")
	require.NoError(t, err)
	assert.Equal(t, "awa.diallo@example.org", got)

	for _, bad := range []string{"", "not-an-email", "Awa <awa@example.org>"} {
		_, err := Normalize(bad)
		assert.Error(t, err, bad)
	}
}

func TestGreetingName(t *testing.T) {
	assert.Equal(t, "Awa Diallo", GreetingName("Awa Diallo", "x@example.org"))
	assert.Equal(t, "Awa Diallo", GreetingName(" ", "awa.diallo@example.org"))
	assert.Equal(t, "Étudiant", GreetingName("", "@example.org"))
}
