// Package multisig implements the Multi-Sig Execution Gate (§4.11): threshold
// signature collection and execution over registered signers, with per-tx_id
// striped locking so concurrent signers serialize deterministically.
package multisig

import (
	"container/ring"
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
	"github.com/ajitpratap0/cryptofunk/internal/hsm"
	"github.com/ajitpratap0/cryptofunk/internal/rpcrouter"
)

var (
	metricsOnce      sync.Once
	signaturesTotal  *prometheus.CounterVec
	executionsTotal  *prometheus.CounterVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		signaturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "multisig_signatures_total",
			Help: "Signatures collected, by outcome.",
		}, []string{"outcome"})
		executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "multisig_executions_total",
			Help: "Transaction executions, by outcome.",
		}, []string{"outcome"})
	})
}

// SignerKind identifies a signer's signing backend.
type SignerKind string

const (
	SignerHSM      SignerKind = "hsm"
	SignerHardware SignerKind = "hardware"
	SignerSoftware SignerKind = "software"
	SignerExternal SignerKind = "external"
)

// Signer is a registered multi-sig participant.
type Signer struct {
	ID        string
	PublicKey ed25519.PublicKey
	Kind      SignerKind
	Weight    uint32
	HSMKeyID  string // required when Kind == SignerHSM
}

// Threshold is the SignatureThreshold config (§4.11).
type Threshold struct {
	K              int // required signature count
	N              int // total registered signers
	Weighted       bool
	RequiredWeight uint32
}

// Status is a WalletTransaction's lifecycle state.
type Status string

const (
	StatusPending           Status = "pending"
	StatusPartiallySigned   Status = "partially_signed"
	StatusReadyForExecution Status = "ready_for_execution"
	StatusExecuted          Status = "executed"
	StatusRejected          Status = "rejected"
	StatusExpired           Status = "expired"
)

func (s Status) terminal() bool {
	switch s {
	case StatusExecuted, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Signature is one collected TransactionSignature.
type Signature struct {
	SignerID string
	Data     []byte
	SignedAt time.Time
}

// Transaction is a WalletTransaction under signature collection (§4.11).
type Transaction struct {
	ID         string
	Payload    []byte
	Creator    string
	Status     Status
	Signatures map[string]Signature
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func (t *Transaction) expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Submitter submits an executed transaction's payload via the RPC router.
type Submitter interface {
	Call(ctx context.Context, method string, params any, required rpcrouter.Feature) (any, error)
}

// historyEntry is one ring-buffered terminal transaction snapshot.
type historyEntry struct {
	tx Transaction
}

// Gate is the Multi-Sig Execution Gate.
type Gate struct {
	log       zerolog.Logger
	hsmMgr    *hsm.Manager
	submitter Submitter
	threshold Threshold

	signersMu sync.RWMutex
	signers   map[string]Signer

	txLocks sync.Map // tx_id -> *sync.Mutex, striped per-transaction
	txMu    sync.Mutex
	txs     map[string]*Transaction

	historyMu sync.Mutex
	history   *ring.Ring
	histLen   int
}

const historyCapacity = 1000

// New creates a Gate. submitter may be nil; Execute then marks a verified
// transaction Executed without submitting it.
func New(log zerolog.Logger, hsmMgr *hsm.Manager, submitter Submitter, threshold Threshold) *Gate {
	initMetrics()
	return &Gate{
		log:       log.With().Str("component", "multisig").Logger(),
		hsmMgr:    hsmMgr,
		submitter: submitter,
		threshold: threshold,
		signers:   make(map[string]Signer),
		txs:       make(map[string]*Transaction),
		history:   ring.New(historyCapacity),
	}
}

// RegisterSigner adds a signer. HSM signers must carry a key id (§4.11).
func (g *Gate) RegisterSigner(s Signer) error {
	if s.Kind == SignerHSM && s.HSMKeyID == "" {
		return errs.New(errs.KindInput, "multisig", "HSM signer must reference an HSM key id")
	}
	g.signersMu.Lock()
	defer g.signersMu.Unlock()
	g.signers[s.ID] = s
	return nil
}

func (g *Gate) lockFor(txID string) *sync.Mutex {
	actual, _ := g.txLocks.LoadOrStore(txID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Create registers a new pending transaction; creator must be a registered
// signer (§4.11 step 1).
func (g *Gate) Create(payload []byte, creator string, ttl time.Duration) (string, error) {
	g.signersMu.RLock()
	_, known := g.signers[creator]
	g.signersMu.RUnlock()
	if !known {
		return "", errs.New(errs.KindInput, "multisig", "creator is not a registered signer")
	}

	now := time.Now()
	tx := &Transaction{
		ID:         uuid.NewString(),
		Payload:    payload,
		Creator:    creator,
		Status:     StatusPending,
		Signatures: make(map[string]Signature),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	g.txMu.Lock()
	g.txs[tx.ID] = tx
	g.txMu.Unlock()
	return tx.ID, nil
}

// Sign collects signerID's signature over tx_id (§4.11 step 2-3). Per-tx_id
// locking serializes concurrent sign calls so duplicate signatures from the
// same signer are rejected deterministically.
func (g *Gate) Sign(ctx context.Context, txID, signerID string) error {
	lock := g.lockFor(txID)
	lock.Lock()
	defer lock.Unlock()

	g.txMu.Lock()
	tx, ok := g.txs[txID]
	g.txMu.Unlock()
	if !ok {
		return errs.New(errs.KindInput, "multisig", "unknown transaction")
	}

	if tx.Status.terminal() {
		return errs.New(errs.KindIntegrity, "multisig", "transaction already in a terminal state")
	}

	now := time.Now()
	if tx.expired(now) {
		tx.Status = StatusExpired
		g.pushHistory(*tx)
		return errs.New(errs.KindTimeout, "multisig", "transaction expired")
	}

	g.signersMu.RLock()
	signer, known := g.signers[signerID]
	g.signersMu.RUnlock()
	if !known {
		return errs.New(errs.KindInput, "multisig", "unknown signer")
	}

	if _, already := tx.Signatures[signerID]; already {
		return errs.New(errs.KindInput, "multisig", "signer already signed this transaction")
	}

	sigData, err := g.produceSignature(ctx, signer, tx.Payload)
	if err != nil {
		return err
	}

	tx.Signatures[signerID] = Signature{SignerID: signerID, Data: sigData, SignedAt: now}
	g.advanceStatusLocked(tx)
	return nil
}

// produceSignature dispatches signing to the signer's backend; HSM signers
// go through the HSM subsystem (§4.12).
func (g *Gate) produceSignature(ctx context.Context, signer Signer, payload []byte) ([]byte, error) {
	if signer.Kind == SignerHSM {
		if g.hsmMgr == nil {
			return nil, errs.ErrHSMDisconnected
		}
		return g.hsmMgr.Sign(signer.HSMKeyID, payload, hsm.AlgorithmEd25519)
	}
	return nil, errs.New(errs.KindInput, "multisig", "non-HSM signers must supply a pre-computed signature via ExternalSign")
}

// ExternalSign attaches a signature produced outside the gate (Hardware,
// Software, or External signer kinds) after verifying it against the
// signer's registered public key.
func (g *Gate) ExternalSign(txID, signerID string, signature []byte) error {
	lock := g.lockFor(txID)
	lock.Lock()
	defer lock.Unlock()

	g.txMu.Lock()
	tx, ok := g.txs[txID]
	g.txMu.Unlock()
	if !ok {
		return errs.New(errs.KindInput, "multisig", "unknown transaction")
	}
	if tx.Status.terminal() {
		return errs.New(errs.KindIntegrity, "multisig", "transaction already in a terminal state")
	}

	now := time.Now()
	if tx.expired(now) {
		tx.Status = StatusExpired
		g.pushHistory(*tx)
		return errs.New(errs.KindTimeout, "multisig", "transaction expired")
	}

	g.signersMu.RLock()
	signer, known := g.signers[signerID]
	g.signersMu.RUnlock()
	if !known {
		return errs.New(errs.KindInput, "multisig", "unknown signer")
	}
	if _, already := tx.Signatures[signerID]; already {
		return errs.New(errs.KindInput, "multisig", "signer already signed this transaction")
	}
	if !ed25519.Verify(signer.PublicKey, tx.Payload, signature) {
		signaturesTotal.WithLabelValues("rejected").Inc()
		return errs.ErrSignatureBad
	}

	tx.Signatures[signerID] = Signature{SignerID: signerID, Data: signature, SignedAt: now}
	signaturesTotal.WithLabelValues("accepted").Inc()
	g.advanceStatusLocked(tx)
	return nil
}

// advanceStatusLocked implements §4.11 step 3; caller must hold tx's stripe lock.
func (g *Gate) advanceStatusLocked(tx *Transaction) {
	if g.satisfiesThresholdLocked(tx) {
		tx.Status = StatusReadyForExecution
		return
	}
	tx.Status = StatusPartiallySigned
}

func (g *Gate) satisfiesThresholdLocked(tx *Transaction) bool {
	if !g.threshold.Weighted {
		return len(tx.Signatures) >= g.threshold.K
	}
	g.signersMu.RLock()
	defer g.signersMu.RUnlock()
	var weight uint32
	for signerID := range tx.Signatures {
		weight += g.signers[signerID].Weight
	}
	return weight >= g.threshold.RequiredWeight
}

// Execute re-verifies every signature and submits the transaction via the
// RPC router (§4.11 step 4).
func (g *Gate) Execute(ctx context.Context, txID string) error {
	lock := g.lockFor(txID)
	lock.Lock()
	defer lock.Unlock()

	g.txMu.Lock()
	tx, ok := g.txs[txID]
	g.txMu.Unlock()
	if !ok {
		return errs.New(errs.KindInput, "multisig", "unknown transaction")
	}
	if tx.Status != StatusReadyForExecution {
		return errs.New(errs.KindInput, "multisig", "transaction not ready for execution")
	}

	g.signersMu.RLock()
	for signerID, sig := range tx.Signatures {
		signer, known := g.signers[signerID]
		if !known || !ed25519.Verify(signer.PublicKey, tx.Payload, sig.Data) {
			g.signersMu.RUnlock()
			tx.Status = StatusRejected
			g.pushHistory(*tx)
			executionsTotal.WithLabelValues("rejected").Inc()
			return errs.ErrSignatureBad
		}
	}
	g.signersMu.RUnlock()

	if g.submitter != nil {
		if _, err := g.submitter.Call(ctx, "sendTransaction", tx.Payload, 0); err != nil {
			executionsTotal.WithLabelValues("submit_failed").Inc()
			return errs.Wrap(errs.KindExternal, "multisig", "submit transaction", err)
		}
	}

	tx.Status = StatusExecuted
	g.pushHistory(*tx)
	executionsTotal.WithLabelValues("executed").Inc()
	return nil
}

func (g *Gate) pushHistory(tx Transaction) {
	g.historyMu.Lock()
	defer g.historyMu.Unlock()
	g.history.Value = historyEntry{tx: tx}
	g.history = g.history.Next()
	if g.histLen < historyCapacity {
		g.histLen++
	}

	g.txMu.Lock()
	delete(g.txs, tx.ID)
	g.txMu.Unlock()
}

// Get returns a snapshot of a transaction by id, from either the active set
// or the terminal history.
func (g *Gate) Get(txID string) (Transaction, bool) {
	g.txMu.Lock()
	if tx, ok := g.txs[txID]; ok {
		snapshot := *tx
		g.txMu.Unlock()
		return snapshot, true
	}
	g.txMu.Unlock()

	g.historyMu.Lock()
	defer g.historyMu.Unlock()
	r := g.history
	for i := 0; i < g.histLen; i++ {
		r = r.Prev()
		entry := r.Value.(historyEntry)
		if entry.tx.ID == txID {
			return entry.tx, true
		}
	}
	return Transaction{}, false
}

// History returns every terminal transaction, most recent first.
func (g *Gate) History() []Transaction {
	g.historyMu.Lock()
	defer g.historyMu.Unlock()
	out := make([]Transaction, 0, g.histLen)
	r := g.history
	for i := 0; i < g.histLen; i++ {
		r = r.Prev()
		out = append(out, r.Value.(historyEntry).tx)
	}
	return out
}
