package hsm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
)

type failingDialer struct{ err error }

func (d failingDialer) Dial(ctx context.Context) error { return d.err }

func newTestManager() *Manager {
	return New(zerolog.Nop(), NewSoftHSM())
}

func TestGenerateSignVerifyRoundTrip(t *testing.T) {
	m := newTestManager()
	keyID, pub, err := m.GenerateKeyPair("wallet-signer")
	require.NoError(t, err)
	require.NotEmpty(t, keyID)
	require.Len(t, pub, 32)

	data := []byte("transaction payload")
	sig, err := m.Sign(keyID, data, AlgorithmEd25519)
	require.NoError(t, err)

	ok, err := m.Verify(keyID, data, sig, AlgorithmEd25519)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	m := newTestManager()
	keyID, _, err := m.GenerateKeyPair("k")
	require.NoError(t, err)

	sig, err := m.Sign(keyID, []byte("original"), AlgorithmEd25519)
	require.NoError(t, err)

	ok, err := m.Verify(keyID, []byte("tampered"), sig, AlgorithmEd25519)
	require.NoError(t, err)
	require.False(t, ok)
}

// §4.12 — every operation is gated on connected; disconnected fails fast.
func TestDisconnectedFailsFastWithoutReachingBackend(t *testing.T) {
	m := newTestManager()
	m.SetConnected(false)

	_, _, err := m.GenerateKeyPair("k")
	require.ErrorIs(t, err, errs.ErrHSMDisconnected)

	_, err = m.Sign("anything", []byte("x"), AlgorithmEd25519)
	require.ErrorIs(t, err, errs.ErrHSMDisconnected)
}

func TestAuditHistoryRecordsEveryOperationMostRecentFirst(t *testing.T) {
	m := newTestManager()
	keyID, _, err := m.GenerateKeyPair("k")
	require.NoError(t, err)
	_, err = m.Sign(keyID, []byte("x"), AlgorithmEd25519)
	require.NoError(t, err)

	history := m.AuditHistory()
	require.Len(t, history, 2)
	require.Equal(t, "sign", history[0].Kind)
	require.Equal(t, "generate_key_pair", history[1].Kind)
	require.True(t, history[0].Success)
}

func TestReconnectSurfacesDialFailure(t *testing.T) {
	m := New(zerolog.Nop(), NewSoftHSM()).WithDialer(failingDialer{err: errors.New("device unreachable")})
	m.SetConnected(false)

	err := m.Reconnect(context.Background())
	require.Error(t, err)

	_, _, genErr := m.GenerateKeyPair("k")
	require.ErrorIs(t, genErr, errs.ErrHSMDisconnected)
}

func TestDeleteKeyThenSignFails(t *testing.T) {
	m := newTestManager()
	keyID, _, err := m.GenerateKeyPair("k")
	require.NoError(t, err)
	require.NoError(t, m.DeleteKey(keyID))

	_, err = m.Sign(keyID, []byte("x"), AlgorithmEd25519)
	require.Error(t, err)
}
