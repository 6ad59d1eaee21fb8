package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBcryptHasher(t *testing.T) {
	// MinCost keeps the test fast, production cost is set in DefaultHasher
	hasher := BcryptHasher{Cost: 4}

	t.Run("hash and compare", func(t *testing.T) {
		hash, err := hasher.Hash("correct horse battery staple")
		require.NoError(t, err)
		require.NotEmpty(t, hash)
		require.NotContains(t, hash, "correct", "hash must not contain the password")

		require.NoError(t, hasher.Compare(hash, "correct horse battery staple"))
		require.Error(t, hasher.Compare(hash, "wrong password"))
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		first, err := hasher.Hash("password")
		require.NoError(t, err)
		second, err := hasher.Hash("password")
		require.NoError(t, err)

		require.NotEqual(t, first, second, "bcrypt salt must make hashes unique")
	})

	t.Run("long passwords supported", func(t *testing.T) {
		// Raw bcrypt truncates input at 72 bytes, the sha256 prehash must not
		long := strings.Repeat("a", 80)
		evenLonger := strings.Repeat("a", 81)

		hash, err := hasher.Hash(long)
		require.NoError(t, err)

		require.NoError(t, hasher.Compare(hash, long))
		require.Error(t, hasher.Compare(hash, evenLonger), "passwords over 72 bytes must still differ")
	})
}
