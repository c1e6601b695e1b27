package api

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lorawan-node/pv-node/internal/models"
	"github.com/lorawan-node/pv-node/internal/storage"
	"github.com/lorawan-node/pv-node/pkg/lwcmd"
)

// HandleQueueCommand queues a device command for the next uplink. The body
// is a JSON command object such as {"cmd":"set-sleep-interval","seconds":300}.
func (s *RESTServer) HandleQueueCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devEUIStr := chi.URLParam(r, "dev_eui")
	devEUI, err := parseEUI64(devEUIStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cmd, err := lwcmd.FromJSON(body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Optional reference rides alongside the command parameters
	var meta struct {
		Reference string `json:"reference,omitempty"`
	}
	json.Unmarshal(body, &meta)

	// Get device info
	device, err := s.store.GetDevice(ctx, devEUI)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	queued := &models.DownlinkCommand{
		DevEUI:    device.DevEUI,
		Name:      lwcmd.Name(cmd),
		FPort:     cmd.Port(),
		Payload:   cmd.Encode(),
		Reference: meta.Reference,
	}

	if err := s.store.CreateDownlinkCommand(ctx, queued); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to queue command")
		return
	}

	// Log event
	event := &models.EventLog{
		DevEUI:      &device.DevEUI,
		Type:        models.EventTypeCommandQueued,
		Level:       models.EventLevelInfo,
		Description: "Command queued",
		Details: models.Variables{
			"id":        queued.ID,
			"command":   queued.Name,
			"fPort":     queued.FPort,
			"payload":   hex.EncodeToString(queued.Payload),
			"reference": queued.Reference,
		},
	}
	s.store.CreateEventLog(ctx, event)

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":      queued.ID,
		"command": queued.Name,
		"fPort":   queued.FPort,
		"payload": hex.EncodeToString(queued.Payload),
		"status":  "pending",
	})
}

// HandleListDeviceCommands lists queued and sent commands for a device
func (s *RESTServer) HandleListDeviceCommands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devEUIStr := chi.URLParam(r, "dev_eui")
	devEUI, err := parseEUI64(devEUIStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	cmds, total, err := s.store.ListDownlinkCommands(ctx, devEUI, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Convert to API response
	response := make([]map[string]interface{}, len(cmds))
	for i, cmd := range cmds {
		response[i] = map[string]interface{}{
			"id":        cmd.ID,
			"command":   cmd.Name,
			"fPort":     cmd.FPort,
			"payload":   hex.EncodeToString(cmd.Payload),
			"isPending": cmd.IsPending,
			"createdAt": cmd.CreatedAt,
			"sentAt":    cmd.SentAt,
			"reference": cmd.Reference,
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"commands": response,
		"total":    total,
	})
}

// HandleCancelCommand cancels a command that has not been sent yet
func (s *RESTServer) HandleCancelCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	commandIDStr := chi.URLParam(r, "id")
	commandID, err := uuid.Parse(commandIDStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid command id")
		return
	}

	if err := s.store.DeleteDownlinkCommand(ctx, commandID); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "command not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
