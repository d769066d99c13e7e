package handlers

import (
	"net/http"
	"strconv"

	"relink/internal/storage"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// EventLister reads recorded controller events.
type EventLister interface {
	List(limit int) ([]*storage.EventRecord, error)
	ListByCycle(cycleID string) ([]*storage.EventRecord, error)
}

// EventsResponse is the GET /api/events body.
type EventsResponse struct {
	Events []*storage.EventRecord `json:"events"`
	Count  int                    `json:"count"`
}

// EventsHandler handles GET /api/events?cycle=&limit=. With cycle set the
// events of that cycle are returned oldest first, otherwise the most recent
// events newest first.
func EventsHandler(store EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "event history is disabled")
			return
		}

		q := r.URL.Query()
		limit := defaultEventLimit
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxEventLimit)
		}

		var (
			events []*storage.EventRecord
			err    error
		)
		if cycle := q.Get("cycle"); cycle != "" {
			events, err = store.ListByCycle(cycle)
			if err == nil && len(events) == 0 {
				SendError(w, http.StatusNotFound, ErrCodeNotFound, "no events for cycle "+cycle)
				return
			}
		} else {
			events, err = store.List(limit)
		}
		if err != nil {
			SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}

		if events == nil {
			events = []*storage.EventRecord{}
		}
		SendJSON(w, http.StatusOK, EventsResponse{Events: events, Count: len(events)})
	}
}
