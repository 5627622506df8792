package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{ReqID: 7}
	f.Add(RecordHandshakeType, []byte{HandshakeRequest})
	f.Add(RecordSenderKey, make([]byte, 32))

	b, err := f.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, byte(7), decoded.ReqID)

	v, ok := decoded.GetFixed(RecordSenderKey, 32)
	require.True(t, ok)
	require.Len(t, v, 32)
}

func TestUnmarshalTruncated(t *testing.T) {
	_, err := Unmarshal([]byte{1, 0})
	require.ErrorIs(t, err, ErrTruncated)

	_, err = Unmarshal([]byte{1, 0, 0, byte(RecordSenderKey), 5, 0})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestNonceRoundTrip(t *testing.T) {
	var n [CommonNonceBytes]byte
	PutNonce(&n, 0xdeadbeef)
	require.Equal(t, uint64(0xdeadbeef), NonceValue(n))
}
