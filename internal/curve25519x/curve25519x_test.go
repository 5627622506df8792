package curve25519x

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSecretRoundTrips(t *testing.T) {
	sc, raw, err := GenerateSecret()
	require.NoError(t, err)
	require.NotEqual(t, [SecretSize]byte{}, raw)

	pub := BasepointMul(sc)
	decoded, err := PointFromBytes(pub.Bytes()[:])
	require.NoError(t, err)
	require.Equal(t, pub.Bytes(), decoded.Bytes())
}

func TestIdentityPointDetected(t *testing.T) {
	a, _, err := GenerateSecret()
	require.NoError(t, err)
	pubA := BasepointMul(a)

	// Multiplying the point by a scalar equal to -a's... simplest identity
	// construction: a point times the zero scalar is the identity.
	var zero Scalar
	zero.Zero()
	identity := pubA.ScalarMul(&zero)
	require.True(t, identity.IsIdentity())
}

func TestScalarAddMultiply(t *testing.T) {
	a, _, err := GenerateSecret()
	require.NoError(t, err)
	b, _, err := GenerateSecret()
	require.NoError(t, err)

	sum := a.Add(b)
	// (a+b)*B == a*B + b*B
	lhs := BasepointMul(sum)
	rhs := BasepointMul(a).Add(BasepointMul(b))
	require.Equal(t, lhs.Bytes(), rhs.Bytes())
}

func TestScalarFromHalfHashDeterministic(t *testing.T) {
	half := make([]byte, 16)
	for i := range half {
		half[i] = byte(i)
	}
	s1, err := ScalarFromHalfHash(half)
	require.NoError(t, err)
	s2, err := ScalarFromHalfHash(half)
	require.NoError(t, err)
	require.Equal(t, BasepointMul(s1).Bytes(), BasepointMul(s2).Bytes())
}
