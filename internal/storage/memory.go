// Package storage contains the in-memory persistence layer. It satisfies the
// same interfaces as the pgx repositories and backs the engine and API test
// suites as well as single-process development mode.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

// Memory is an RWMutex-guarded implementation of the engine's Store.
type Memory struct {
	mu       sync.RWMutex
	jobs     map[string]*model.Job
	txs      map[string]*model.Transaction
	txSeq    map[string]int
	docs     map[string]*model.Document
	accounts map[string]*model.BankAccount
	matches  map[string]*model.ReconciliationMatch
	seq      int
}

// NewMemory constructs an empty store.
func NewMemory() *Memory {
	return &Memory{
		jobs:     make(map[string]*model.Job),
		txs:      make(map[string]*model.Transaction),
		txSeq:    make(map[string]int),
		docs:     make(map[string]*model.Document),
		accounts: make(map[string]*model.BankAccount),
		matches:  make(map[string]*model.ReconciliationMatch),
	}
}

// CreateJob inserts the job, enforcing the (owner, content hash) uniqueness
// that the SQL layer gets from its partial unique index. Forced jobs are
// exempt, matching the index's WHERE NOT forced clause.
func (m *Memory) CreateJob(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !job.Forced {
		for _, existing := range m.jobs {
			if existing.OwnerID == job.OwnerID && existing.ContentHash == job.ContentHash && !existing.Forced {
				return model.ErrDuplicate
			}
		}
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

// Job returns a copy of the job.
func (m *Memory) Job(_ context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

// JobsByOwner returns the owner's jobs, newest first.
func (m *Memory) JobsByOwner(_ context.Context, ownerID string) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, job := range m.jobs {
		if job.OwnerID == ownerID {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// JobsByBankAccount returns jobs attached to the bank account.
func (m *Memory) JobsByBankAccount(_ context.Context, bankAccountID string) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, job := range m.jobs {
		if job.BankAccountID != nil && *job.BankAccountID == bankAccountID {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// JobByContentHash finds any job of the owner with the hash, forced included,
// so a repeat upload after a forced ingest still reports exact duplication.
func (m *Memory) JobByContentHash(_ context.Context, ownerID, hash string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		if job.OwnerID == ownerID && job.ContentHash == hash {
			cp := *job
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

// UpdateJob replaces the stored job.
func (m *Memory) UpdateJob(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

// DeleteJob removes the job, its transactions and their matches.
func (m *Memory) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.jobs, id)
	for txID, tx := range m.txs {
		if tx.JobID == id {
			delete(m.txs, txID)
			delete(m.txSeq, txID)
			delete(m.matches, txID)
		}
	}
	return nil
}

// BulkInsert commits the batch atomically under the write lock. Inserting
// into a deleted job loses deterministically with ErrNotFound.
func (m *Memory) BulkInsert(_ context.Context, jobID string, txs []*model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return model.ErrNotFound
	}
	for _, tx := range txs {
		cp := *tx
		cp.Document = nil
		m.seq++
		m.txs[tx.ID] = &cp
		m.txSeq[tx.ID] = m.seq
	}
	return nil
}

// Transaction returns a copy of the row.
func (m *Memory) Transaction(_ context.Context, id string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

// TransactionsByJob returns the job's rows in insertion order.
func (m *Memory) TransactionsByJob(_ context.Context, jobID string) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Transaction
	for _, tx := range m.txs {
		if tx.JobID == jobID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.txSeq[out[i].ID] < m.txSeq[out[j].ID] })
	return out, nil
}

// UpdateTransaction replaces the stored row.
func (m *Memory) UpdateTransaction(_ context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[tx.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *tx
	cp.Document = nil
	m.txs[tx.ID] = &cp
	return nil
}

// DeleteTransaction removes the row and any match hanging off it.
func (m *Memory) DeleteTransaction(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.txs, id)
	delete(m.txSeq, id)
	delete(m.matches, id)
	return nil
}

// DeleteGroup removes every row in the job sharing the document id.
func (m *Memory) DeleteGroup(_ context.Context, jobID, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, tx := range m.txs {
		if tx.JobID == jobID && tx.DocumentID != nil && *tx.DocumentID == documentID {
			delete(m.txs, id)
			delete(m.txSeq, id)
			delete(m.matches, id)
			deleted++
		}
	}
	return deleted, nil
}

// CreateDocument inserts the document.
func (m *Memory) CreateDocument(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

// Document returns a copy of the document.
func (m *Memory) Document(_ context.Context, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

// DocumentsByOwner returns the owner's documents.
func (m *Memory) DocumentsByOwner(_ context.Context, ownerID string) ([]*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Document
	for _, doc := range m.docs {
		if doc.OwnerID == ownerID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveMatch upserts the match on transaction id.
func (m *Memory) SaveMatch(_ context.Context, match *model.ReconciliationMatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *match
	m.matches[match.TransactionID] = &cp
	return nil
}

// MatchByTransaction returns the transaction's active match.
func (m *Memory) MatchByTransaction(_ context.Context, transactionID string) (*model.ReconciliationMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[transactionID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *match
	return &cp, nil
}

// DeleteMatch removes the transaction's match if present.
func (m *Memory) DeleteMatch(_ context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.matches, transactionID)
	return nil
}

// MatchedDocumentIDs returns documentID -> transactionID for active matches.
func (m *Memory) MatchedDocumentIDs(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.matches))
	for txID, match := range m.matches {
		out[match.DocumentID] = txID
	}
	return out, nil
}

// CreateAccount inserts the bank account.
func (m *Memory) CreateAccount(_ context.Context, account *model.BankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

// Account returns a copy of the bank account.
func (m *Memory) Account(_ context.Context, id string) (*model.BankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *account
	return &cp, nil
}

// AccountsByOwner returns the owner's bank accounts.
func (m *Memory) AccountsByOwner(_ context.Context, ownerID string) ([]*model.BankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.BankAccount
	for _, account := range m.accounts {
		if account.OwnerID == ownerID {
			cp := *account
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
