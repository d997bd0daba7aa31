package billing

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/practice-booking-engine/internal/notification"
)

type fakeRepo struct {
	mu          sync.Mutex
	invoices    map[uuid.UUID]*Invoice
	adjustments []Adjustment

	failAdjustmentInsert error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{invoices: make(map[uuid.UUID]*Invoice)}
}

func (f *fakeRepo) put(inv *Invoice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *inv
	f.invoices[inv.ID] = &cp
}

func (f *fakeRepo) get(id uuid.UUID) *Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil
	}
	cp := *inv
	return &cp
}

func (f *fakeRepo) GetInvoice(_ context.Context, id uuid.UUID) (*Invoice, error) {
	inv := f.get(id)
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}
	return inv, nil
}

func (f *fakeRepo) ListAdjustments(_ context.Context, invoiceID uuid.UUID) ([]Adjustment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Adjustment
	for _, a := range f.adjustments {
		if a.InvoiceID == invoiceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdatePayment(_ context.Context, id uuid.UUID, from PaymentStatus, upd PaymentUpdate) (*Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok || inv.PaymentStatus != from || inv.Status != InvoiceIssued {
		return nil, ErrInvoiceNotFound
	}
	inv.PaymentStatus = upd.To
	if upd.Reference != nil {
		inv.PaymentReference = upd.Reference
	}
	if upd.VerifiedBy != nil {
		inv.VerifiedBy = upd.VerifiedBy
	}
	if upd.VerifiedAt != nil {
		inv.VerifiedAt = upd.VerifiedAt
	}
	if upd.VerificationNote != nil {
		inv.VerificationNote = upd.VerificationNote
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeRepo) CreateInvoice(_ context.Context, inv *Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.invoices {
		if inv.ReissuedFromID != nil && existing.ReissuedFromID != nil && *existing.ReissuedFromID == *inv.ReissuedFromID {
			return ErrAlreadyReissued
		}
	}
	cp := *inv
	f.invoices[inv.ID] = &cp
	return nil
}

// InTx stages writes and applies them only when fn succeeds.
func (f *fakeRepo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &fakeTx{repo: f, totals: make(map[uuid.UUID]decimal.Decimal)}
	if err := fn(tx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, total := range tx.totals {
		f.invoices[id].Total = total
	}
	f.adjustments = append(f.adjustments, tx.adjustments...)
	return nil
}

type fakeTx struct {
	repo        *fakeRepo
	totals      map[uuid.UUID]decimal.Decimal
	adjustments []Adjustment
}

func (t *fakeTx) UpdateTotal(_ context.Context, id uuid.UUID, from PaymentStatus, total decimal.Decimal) (*Invoice, error) {
	inv := t.repo.get(id)
	if inv == nil || inv.PaymentStatus != from || inv.Status != InvoiceIssued {
		return nil, ErrInvoiceNotFound
	}
	t.totals[id] = total
	inv.Total = total
	return inv, nil
}

func (t *fakeTx) InsertAdjustment(_ context.Context, adj *Adjustment) error {
	if t.repo.failAdjustmentInsert != nil {
		return t.repo.failAdjustmentInsert
	}
	t.adjustments = append(t.adjustments, *adj)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	records []notification.Record
}

func (n *recordingNotifier) Notify(_ context.Context, rec notification.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
}

func (n *recordingNotifier) all() []notification.Record {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Record(nil), n.records...)
}

var errBoom = errors.New("boom")
