package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lorawan-node/pv-node/internal/models"
	"github.com/lorawan-node/pv-node/internal/storage"
)

// HandleListEvents lists event logs
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var filters storage.EventLogFilters

	if v := q.Get("dev_eui"); v != "" {
		devEUI, err := parseEUI64(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
			return
		}
		filters.DevEUI = &devEUI
	}

	if v := q.Get("type"); v != "" {
		eventType := models.EventType(v)
		filters.Type = &eventType
	}

	if v := q.Get("level"); v != "" {
		eventLevel := models.EventLevel(v)
		filters.Level = &eventLevel
	}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		filters.StartTime = &t
	}

	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		filters.EndTime = &t
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit == 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))

	events, total, err := s.store.ListEventLogs(ctx, filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
