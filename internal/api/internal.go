package api

import (
	"net/http"
)

func drainReportQueueHandler(worker ReportDrainer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := worker.Drain(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func dispatchNotificationsHandler(d NotificationDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := d.Dispatch(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
