// Package hsm abstracts hardware security module key management (§4.12):
// generate/sign/verify/delete gated on a connection flag, with a bounded
// audit trail of every operation.
package hsm

import (
	"container/ring"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
)

// Algorithm names an HSM signing algorithm.
type Algorithm string

const (
	AlgorithmEd25519 Algorithm = "ed25519"
)

// KeyPairGenerator creates an asymmetric key, returning an opaque key id.
type KeyPairGenerator interface {
	GenerateKeyPair(label string) (keyID string, publicKey []byte, err error)
}

// Signer signs data under keyID.
type Signer interface {
	Sign(keyID string, data []byte, alg Algorithm) ([]byte, error)
}

// Verifier verifies a signature against a keyID's public key.
type Verifier interface {
	Verify(keyID string, data, signature []byte, alg Algorithm) (bool, error)
}

// KeyDeleter removes a key's material from the backend.
type KeyDeleter interface {
	DeleteKey(keyID string) error
}

// Backend is the full provider adapter surface.
type Backend interface {
	KeyPairGenerator
	Signer
	Verifier
	KeyDeleter
}

// AuditEntry records one HSM operation (§4.12).
type AuditEntry struct {
	OpID       string
	Kind       string
	DurationMs float64
	Success    bool
	Error      string
}

const auditHistoryCapacity = 1000

// Manager gates a Backend behind a connected flag and appends every
// operation to a bounded audit ring.
type Manager struct {
	log     zerolog.Logger
	backend Backend

	mu        sync.Mutex
	connected bool
	audit     *ring.Ring
	auditLen  int
	dialer    Dialer
	breaker   *gobreaker.CircuitBreaker
}

// Dialer establishes (or re-establishes) the HSM connection.
type Dialer interface {
	Dial(ctx context.Context) error
}

// New creates a Manager wrapping backend, initially connected.
func New(log zerolog.Logger, backend Backend) *Manager {
	m := &Manager{
		log:       log.With().Str("component", "hsm").Logger(),
		backend:   backend,
		connected: true,
		audit:     ring.New(auditHistoryCapacity),
	}
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "hsm-dial",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return m
}

// WithDialer attaches the backend's connection-establishment hook, used by
// Reconnect to re-dial behind the circuit breaker.
func (m *Manager) WithDialer(d Dialer) *Manager {
	m.dialer = d
	return m
}

// Reconnect re-establishes the HSM connection through a circuit breaker so
// repeated dial failures fail fast instead of hammering the device.
func (m *Manager) Reconnect(ctx context.Context) error {
	if m.dialer == nil {
		m.SetConnected(true)
		return nil
	}
	_, err := m.breaker.Execute(func() (any, error) {
		return nil, m.dialer.Dial(ctx)
	})
	if err != nil {
		return errs.Wrap(errs.KindExternal, "hsm", "reconnect", err)
	}
	m.SetConnected(true)
	return nil
}

// SetConnected toggles the connection flag; disconnecting fails every
// subsequent operation fast with ErrHSMDisconnected (§4.12).
func (m *Manager) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *Manager) recordLocked(kind string, start time.Time, success bool, opErr error) string {
	opID := uuid.NewString()
	entry := AuditEntry{
		OpID:       opID,
		Kind:       kind,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Success:    success,
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	m.audit.Value = entry
	m.audit = m.audit.Next()
	if m.auditLen < auditHistoryCapacity {
		m.auditLen++
	}
	return opID
}

func (m *Manager) guard() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return errs.ErrHSMDisconnected
	}
	return nil
}

// GenerateKeyPair creates a new key, gated on connected.
func (m *Manager) GenerateKeyPair(label string) (string, []byte, error) {
	start := time.Now()
	if err := m.guard(); err != nil {
		m.mu.Lock()
		m.recordLocked("generate_key_pair", start, false, err)
		m.mu.Unlock()
		return "", nil, err
	}

	keyID, pub, err := m.backend.GenerateKeyPair(label)
	m.mu.Lock()
	m.recordLocked("generate_key_pair", start, err == nil, err)
	m.mu.Unlock()
	if err != nil {
		return "", nil, errs.Wrap(errs.KindExternal, "hsm", "generate key pair", err)
	}
	return keyID, pub, nil
}

// Sign signs data under keyID, gated on connected.
func (m *Manager) Sign(keyID string, data []byte, alg Algorithm) ([]byte, error) {
	start := time.Now()
	if err := m.guard(); err != nil {
		m.mu.Lock()
		m.recordLocked("sign", start, false, err)
		m.mu.Unlock()
		return nil, err
	}

	sig, err := m.backend.Sign(keyID, data, alg)
	m.mu.Lock()
	m.recordLocked("sign", start, err == nil, err)
	m.mu.Unlock()
	if err != nil {
		return nil, errs.Wrap(errs.KindExternal, "hsm", "sign", err)
	}
	return sig, nil
}

// Verify checks a signature, gated on connected.
func (m *Manager) Verify(keyID string, data, signature []byte, alg Algorithm) (bool, error) {
	start := time.Now()
	if err := m.guard(); err != nil {
		m.mu.Lock()
		m.recordLocked("verify", start, false, err)
		m.mu.Unlock()
		return false, err
	}

	ok, err := m.backend.Verify(keyID, data, signature, alg)
	m.mu.Lock()
	m.recordLocked("verify", start, err == nil, err)
	m.mu.Unlock()
	if err != nil {
		return false, errs.Wrap(errs.KindExternal, "hsm", "verify", err)
	}
	return ok, nil
}

// DeleteKey removes keyID, gated on connected.
func (m *Manager) DeleteKey(keyID string) error {
	start := time.Now()
	if err := m.guard(); err != nil {
		m.mu.Lock()
		m.recordLocked("delete_key", start, false, err)
		m.mu.Unlock()
		return err
	}

	err := m.backend.DeleteKey(keyID)
	m.mu.Lock()
	m.recordLocked("delete_key", start, err == nil, err)
	m.mu.Unlock()
	if err != nil {
		return errs.Wrap(errs.KindExternal, "hsm", "delete key", err)
	}
	return nil
}

// AuditHistory returns the last N recorded operations, most recent first.
func (m *Manager) AuditHistory() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AuditEntry, 0, m.auditLen)
	r := m.audit
	for i := 0; i < m.auditLen; i++ {
		r = r.Prev()
		out = append(out, r.Value.(AuditEntry))
	}
	return out
}

// SoftHSM is the default, non-hardware-backed Backend implementation using
// crypto/ed25519, matching spec.md §9's "sealed variant set plus capability
// interface" guidance.
type SoftHSM struct {
	mu   sync.Mutex
	keys map[string]ed25519.PrivateKey
}

// NewSoftHSM creates an empty in-process SoftHSM.
func NewSoftHSM() *SoftHSM {
	return &SoftHSM{keys: make(map[string]ed25519.PrivateKey)}
}

func (s *SoftHSM) GenerateKeyPair(label string) (string, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, err
	}
	keyID := "softhsm-" + label + "-" + uuid.NewString()
	s.mu.Lock()
	s.keys[keyID] = priv
	s.mu.Unlock()
	return keyID, pub, nil
}

func (s *SoftHSM) Sign(keyID string, data []byte, alg Algorithm) ([]byte, error) {
	s.mu.Lock()
	priv, ok := s.keys[keyID]
	s.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.KindInput, "hsm", "unknown key id")
	}
	return ed25519.Sign(priv, data), nil
}

func (s *SoftHSM) Verify(keyID string, data, signature []byte, alg Algorithm) (bool, error) {
	s.mu.Lock()
	priv, ok := s.keys[keyID]
	s.mu.Unlock()
	if !ok {
		return false, errs.New(errs.KindInput, "hsm", "unknown key id")
	}
	return ed25519.Verify(priv.Public().(ed25519.PublicKey), data, signature), nil
}

func (s *SoftHSM) DeleteKey(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[keyID]; !ok {
		return errs.New(errs.KindInput, "hsm", "unknown key id")
	}
	delete(s.keys, keyID)
	return nil
}
