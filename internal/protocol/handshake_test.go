package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blocktrron/fastd-go/internal/curve25519x"
	"github.com/blocktrron/fastd-go/internal/logging"
	"github.com/blocktrron/fastd-go/internal/wire"
)

// stubMethod is a test-only Method: it "encrypts" by prefixing a tag
// derived from the session secret, with no real confidentiality. It
// exists only to exercise the protocol core's session plumbing.
type stubMethod struct{}

type stubSession struct {
	secret    [32]byte
	initiator bool
}

func (stubMethod) SessionInit(secret [32]byte, initiator bool) (any, error) {
	return &stubSession{secret: secret, initiator: initiator}, nil
}

func (stubMethod) Encrypt(session any, nonce Nonce, plaintext []byte) ([]byte, error) {
	out := make([]byte, 0, len(plaintext)+1)
	out = append(out, 0xAA)
	out = append(out, plaintext...)
	return out, nil
}

func (stubMethod) Decrypt(session any, nonce Nonce, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || ciphertext[0] != 0xAA {
		return nil, errDrop
	}
	return ciphertext[1:], nil
}

func (stubMethod) SessionIsValid(session any) bool { return true }

func (stubMethod) SessionIsInitiator(session any) bool {
	return session.(*stubSession).initiator
}
func (stubMethod) SessionWantRefresh(session any) bool { return false }
func (stubMethod) SessionFree(session any)             {}
func (stubMethod) MinEncryptHeadSpace() int             { return 1 }

// stubTransport records the last frame written per peer and never
// resolves unknown addresses, sufficient for directly-driven handshake
// tests that don't exercise address learning.
type stubTransport struct {
	sent map[*PeerState][][]byte
}

func newStubTransport() *stubTransport {
	return &stubTransport{sent: make(map[*PeerState][][]byte)}
}

func (t *stubTransport) WriteTo(peer *PeerState, frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	t.sent[peer] = append(t.sent[peer], cp)
	return nil
}

func (t *stubTransport) ResolvePeer(addr any) (*PeerState, bool)    { return nil, false }
func (t *stubTransport) UpdatePeerAddress(peer *PeerState, addr any) {}
func (t *stubTransport) ResolveHostname(peer *PeerState)             {}

func newTestIdentity(t *testing.T) *IdentitySecret {
	t.Helper()
	id, err := GenerateIdentitySecret()
	require.NoError(t, err)
	return id
}

// handshakePair builds two Contexts (A the initiator, B the
// responder) each configured with the other's public identity key.
func handshakePair(t *testing.T) (ctxA, ctxB *Context, peerOnA, peerOnB *PeerState) {
	t.Helper()

	idA := newTestIdentity(t)
	idB := newTestIdentity(t)

	ctxA = NewContext(idA, stubMethod{}, newStubTransport(), nil, logging.NewNop())
	ctxB = NewContext(idB, stubMethod{}, newStubTransport(), nil, logging.NewNop())

	now := time.Now()
	require.NoError(t, ctxA.Keys.Maintain(now))
	require.NoError(t, ctxB.Keys.Maintain(now))

	peerOnA = NewPeerState(PeerConfig{Name: "b", Key: idB.Public(), Enabled: true})
	peerOnB = NewPeerState(PeerConfig{Name: "a", Key: idA.Public(), Enabled: true})
	ctxA.Peers.Add(peerOnA)
	ctxB.Peers.Add(peerOnB)

	return ctxA, ctxB, peerOnA, peerOnB
}

// runHandshake drives a full three-message handshake between ctxA
// (initiator) and ctxB (responder) directly, without going through
// HandleHandshake/wire marshaling, so tests can inspect intermediate
// state.
func runHandshake(t *testing.T, ctxA, ctxB *Context, peerOnA, peerOnB *PeerState) (req, reply, finish wire.Frame) {
	t.Helper()
	now := time.Now()

	var err error
	req, err = buildRequest(ctxA, peerOnA, now)
	require.NoError(t, err)

	var ok bool
	reply, ok = respondHandshake(ctxB, peerOnB, req, now)
	require.True(t, ok)

	finish, ok = finishHandshake(ctxA, peerOnA, reply, now)
	require.True(t, ok)

	ok = handleFinishHandshake(ctxB, peerOnB, finish)
	require.True(t, ok)

	return req, reply, finish
}

func TestFHMQVSymmetry(t *testing.T) {
	ctxA, ctxB, peerOnA, peerOnB := handshakePair(t)
	runHandshake(t, ctxA, ctxB, peerOnA, peerOnB)

	require.NotNil(t, peerOnA.Current)
	require.NotNil(t, peerOnB.Current)
	require.Equal(t, peerOnA.Current.Secret, peerOnB.Current.Secret)
	require.Equal(t, peerOnA.Current.HandshakeKey, peerOnB.Current.HandshakeKey)
	require.True(t, peerOnA.Current.Initiator)
	require.False(t, peerOnB.Current.Initiator)
}

func TestTamperedSenderHandshakeKeyDroppedOnInitiator(t *testing.T) {
	ctxA, ctxB, peerOnA, peerOnB := handshakePair(t)
	now := time.Now()

	req, err := buildRequest(ctxA, peerOnA, now)
	require.NoError(t, err)

	reply, ok := respondHandshake(ctxB, peerOnB, req, now)
	require.True(t, ok)

	// Tamper with the responder's handshake key in the reply so the
	// initiator's recomputed transcript can never match the
	// responder's confirmation tag.
	for i, rec := range reply.Records {
		if rec.Type == wire.RecordSenderHandshakeKey {
			tampered := make([]byte, len(rec.Value))
			copy(tampered, rec.Value)
			tampered[0] ^= 0xFF
			reply.Records[i].Value = tampered
		}
	}

	_, ok = finishHandshake(ctxA, peerOnA, reply, now)
	require.False(t, ok)
	require.Nil(t, peerOnA.Current)
}

// TestTamperedRecipientHandshakeKeyDroppedOnInitiator exercises
// finishHandshake's echoed-key check: a Reply that swaps in some other
// handshake key public value for RecordRecipientHandshakeKey must be
// dropped even though every other field is untouched, since it no
// longer echoes the handshake key the initiator actually offered in
// the Request.
func TestTamperedRecipientHandshakeKeyDroppedOnInitiator(t *testing.T) {
	ctxA, ctxB, peerOnA, peerOnB := handshakePair(t)
	now := time.Now()

	req, err := buildRequest(ctxA, peerOnA, now)
	require.NoError(t, err)

	reply, ok := respondHandshake(ctxB, peerOnB, req, now)
	require.True(t, ok)

	for i, rec := range reply.Records {
		if rec.Type == wire.RecordRecipientHandshakeKey {
			bogus := make([]byte, curve25519x.PublicSize)
			reply.Records[i].Value = bogus
		}
	}

	_, ok = finishHandshake(ctxA, peerOnA, reply, now)
	require.False(t, ok)
	require.Nil(t, peerOnA.Current)
}

// TestTamperedRecipientHandshakeKeyDroppedOnResponder is the same
// check on the responder side: handleFinishHandshake must reject a
// Finish whose RecordRecipientHandshakeKey doesn't echo the handshake
// key the responder offered in its Reply.
func TestTamperedRecipientHandshakeKeyDroppedOnResponder(t *testing.T) {
	ctxA, ctxB, peerOnA, peerOnB := handshakePair(t)
	now := time.Now()

	req, err := buildRequest(ctxA, peerOnA, now)
	require.NoError(t, err)

	reply, ok := respondHandshake(ctxB, peerOnB, req, now)
	require.True(t, ok)

	finish, ok := finishHandshake(ctxA, peerOnA, reply, now)
	require.True(t, ok)

	for i, rec := range finish.Records {
		if rec.Type == wire.RecordRecipientHandshakeKey {
			bogus := make([]byte, curve25519x.PublicSize)
			finish.Records[i].Value = bogus
		}
	}

	ok = handleFinishHandshake(ctxB, peerOnB, finish)
	require.False(t, ok)
}

func TestWrongRecipientKeyDropped(t *testing.T) {
	ctxA, ctxB, peerOnA, peerOnB := handshakePair(t)
	now := time.Now()

	req, err := buildRequest(ctxA, peerOnA, now)
	require.NoError(t, err)

	for i, rec := range req.Records {
		if rec.Type == wire.RecordRecipientKey {
			bogus := make([]byte, curve25519x.PublicSize)
			req.Records[i].Value = bogus
		}
	}

	_, ok := respondHandshake(ctxB, peerOnB, req, now)
	require.False(t, ok)
}

func TestCleanHandshake(t *testing.T) {
	ctxA, ctxB, peerOnA, peerOnB := handshakePair(t)
	runHandshake(t, ctxA, ctxB, peerOnA, peerOnB)

	plaintext := []byte("hello")
	nonce := peerOnA.Current.Nonces.NextSend()
	ciphertext, err := ctxA.Method.Encrypt(peerOnA.Current.MethodSession, nonce, plaintext)
	require.NoError(t, err)

	frame := append(append([]byte{}, nonce[:]...), ciphertext...)
	got, ok := ctxB.HandleData(peerOnB, frame)
	require.True(t, ok)
	require.Equal(t, plaintext, got)

	require.True(t, peerOnB.HandshakesCleaned)
	require.Nil(t, peerOnB.Handshake)
}

func TestOverlapCorrectness(t *testing.T) {
	ctxA, ctxB, peerOnA, peerOnB := handshakePair(t)
	runHandshake(t, ctxA, ctxB, peerOnA, peerOnB)

	firstSession := peerOnB.Current
	nonce := peerOnA.Current.Nonces.NextSend()
	ciphertext, err := ctxA.Method.Encrypt(peerOnA.Current.MethodSession, nonce, []byte("first"))
	require.NoError(t, err)
	frame := append(append([]byte{}, nonce[:]...), ciphertext...)

	// Rekey: rotate both handshake-key pools so the second handshake
	// uses fresh ephemeral keys, then run it between the same pair.
	later := time.Now().Add(PreferredLifetime)
	require.NoError(t, ctxA.Keys.Maintain(later))
	require.NoError(t, ctxB.Keys.Maintain(later))
	peerOnA.Handshake = nil
	peerOnB.Handshake = nil
	runHandshake(t, ctxA, ctxB, peerOnA, peerOnB)

	require.NotEqual(t, firstSession.Secret, peerOnB.Current.Secret)
	require.Same(t, firstSession, peerOnB.Previous)

	// The new current session must be treated as not-yet-confirmed
	// again, even though an earlier session on this same peer already
	// went through onFirstDecryptUnderCurrent once.
	require.False(t, peerOnB.HandshakesCleaned)

	// A data frame encrypted under the now-previous session must still
	// decrypt successfully during the overlap window.
	got, ok := ctxB.HandleData(peerOnB, frame)
	require.True(t, ok)
	require.Equal(t, []byte("first"), got)

	// A data frame under the new current session fires
	// onFirstDecryptUnderCurrent again, dropping the now-superseded
	// previous session.
	nonce2 := peerOnA.Current.Nonces.NextSend()
	ciphertext2, err := ctxA.Method.Encrypt(peerOnA.Current.MethodSession, nonce2, []byte("second"))
	require.NoError(t, err)
	frame2 := append(append([]byte{}, nonce2[:]...), ciphertext2...)

	got2, ok := ctxB.HandleData(peerOnB, frame2)
	require.True(t, ok)
	require.Equal(t, []byte("second"), got2)
	require.True(t, peerOnB.HandshakesCleaned)
	require.Nil(t, peerOnB.Previous)
}
