package chachapoly

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blocktrron/fastd-go/internal/protocol"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := New()

	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i)
	}

	initiatorSession, err := m.SessionInit(secret, true)
	require.NoError(t, err)
	responderSession, err := m.SessionInit(secret, false)
	require.NoError(t, err)

	var nonce protocol.Nonce
	nonce[0] = 5

	ciphertext, err := m.Encrypt(initiatorSession, nonce, []byte("payload"))
	require.NoError(t, err)

	plaintext, err := m.Decrypt(responderSession, nonce, ciphertext)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), plaintext)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	m := New()
	var secret [32]byte
	initiatorSession, _ := m.SessionInit(secret, true)
	responderSession, _ := m.SessionInit(secret, false)

	var nonce protocol.Nonce
	ciphertext, err := m.Encrypt(initiatorSession, nonce, []byte("payload"))
	require.NoError(t, err)
	ciphertext[0] ^= 0xFF

	_, err = m.Decrypt(responderSession, nonce, ciphertext)
	require.Error(t, err)
}

func TestSessionWantRefreshAndIsValidThresholds(t *testing.T) {
	m := New()
	var secret [32]byte
	sess, err := m.SessionInit(secret, true)
	require.NoError(t, err)

	require.True(t, m.SessionIsValid(sess))
	require.False(t, m.SessionWantRefresh(sess))

	s := sess.(*session)
	s.sendCount.Store(rekeyAfterMessages)
	require.True(t, m.SessionIsValid(sess))
	require.True(t, m.SessionWantRefresh(sess))

	s.sendCount.Store(rejectAfterMessages)
	require.False(t, m.SessionIsValid(sess))
}
