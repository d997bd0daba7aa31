package api

import (
	"net/http"
)

func getInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "invoice")
		if !ok {
			return
		}

		inv, err := svc.Get(r.Context(), p, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
	}
}

func submitPaymentHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "invoice")
		if !ok {
			return
		}

		var req SubmitPaymentRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		inv, err := svc.SubmitPayment(r.Context(), p, id, req.Reference)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
	}
}

func verifyPaymentHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "invoice")
		if !ok {
			return
		}

		var req VerifyPaymentRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		inv, err := svc.Verify(r.Context(), p, id, *req.Approve, req.Note)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
	}
}

func adjustInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "invoice")
		if !ok {
			return
		}

		var req AdjustInvoiceRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		inv, err := svc.Adjust(r.Context(), p, id, *req.NewTotal, req.Reason)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
	}
}

func reissueInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "invoice")
		if !ok {
			return
		}

		inv, err := svc.Reissue(r.Context(), p, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newInvoiceResponse(inv))
	}
}
