package billing

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:              {PaymentAwaitingVerification},
	PaymentAwaitingVerification: {PaymentPaid, PaymentRejected},
}

// CanTransition reports whether a payment may move from one state to another.
// pagada and rechazada are terminal; a rejected invoice is reissued instead.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Adjustable reports whether the total of an invoice may still be changed.
func (i *Invoice) Adjustable() bool {
	if i.Status == InvoiceVoided {
		return false
	}
	return i.PaymentStatus == PaymentPending || i.PaymentStatus == PaymentAwaitingVerification
}

// Unpaid reports whether no payment has been accepted for the invoice.
func (i *Invoice) Unpaid() bool {
	return i.PaymentStatus != PaymentPaid
}
