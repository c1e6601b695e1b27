package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lorawan-node/pv-node/internal/models"
	"github.com/lorawan-node/pv-node/internal/storage"
)

// HandleListDevices lists devices
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	devices, total, err := s.store.ListDevices(ctx, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   total,
	})
}

// HandleCreateDevice creates a device
func (s *RESTServer) HandleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DevEUI      string `json:"dev_eui" validate:"required,len=16"`
		Name        string `json:"name" validate:"required"`
		Description string `json:"description"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Parse DevEUI
	devEUI, err := parseEUI64(req.DevEUI)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid DevEUI")
		return
	}

	device := &models.Device{
		DevEUI:      devEUI,
		Name:        req.Name,
		Description: req.Description,
	}

	if err := s.store.CreateDevice(r.Context(), device); err != nil {
		if err == storage.ErrDuplicateKey {
			s.respondError(w, http.StatusConflict, "device already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, device)
}

// HandleGetDevice gets a device
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devEUIStr := chi.URLParam(r, "dev_eui")
	devEUI, err := parseEUI64(devEUIStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
		return
	}

	device, err := s.store.GetDevice(ctx, devEUI)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}

// HandleUpdateDevice updates a device
func (s *RESTServer) HandleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devEUIStr := chi.URLParam(r, "dev_eui")
	devEUI, err := parseEUI64(devEUIStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
		return
	}

	var req struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description"`
		IsDisabled  bool   `json:"is_disabled"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	device, err := s.store.GetDevice(ctx, devEUI)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	device.Name = req.Name
	device.Description = req.Description
	device.IsDisabled = req.IsDisabled

	if err := s.store.UpdateDevice(ctx, device); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}

// HandleDeleteDevice deletes a device
func (s *RESTServer) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devEUIStr := chi.URLParam(r, "dev_eui")
	devEUI, err := parseEUI64(devEUIStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
		return
	}

	if err := s.store.DeleteDevice(ctx, devEUI); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ========== Telemetry handlers ==========

// HandleDeviceLive lists live readings for a device
func (s *RESTServer) HandleDeviceLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devEUIStr := chi.URLParam(r, "dev_eui")
	devEUI, err := parseEUI64(devEUIStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
		return
	}

	filters, err := parseTelemetryFilters(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	readings, total, err := s.store.ListLiveReadings(ctx, devEUI, filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"readings": readings,
		"total":    total,
	})
}

// HandleDeviceEnergy returns the per-day energy report
func (s *RESTServer) HandleDeviceEnergy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devEUIStr := chi.URLParam(r, "dev_eui")
	devEUI, err := parseEUI64(devEUIStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days == 0 {
		days = 30
	}
	if days < 1 || days > 365 {
		s.respondError(w, http.StatusBadRequest, "days must be between 1 and 365")
		return
	}

	report, err := s.store.EnergyDaily(ctx, devEUI, days)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"days":  report,
		"total": len(report),
	})
}

// HandleExportDeviceData exports telemetry as CSV or JSON
func (s *RESTServer) HandleExportDeviceData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devEUIStr := chi.URLParam(r, "dev_eui")
	devEUI, err := parseEUI64(devEUIStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
		return
	}

	filters, err := parseTelemetryFilters(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = "live"
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 1000
	}

	switch kind {
	case "live":
		readings, _, err := s.store.ListLiveReadings(ctx, devEUI, filters, limit, 0)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.exportLiveReadings(w, devEUIStr, format, readings)

	case "energy":
		readings, _, err := s.store.ListEnergyReadings(ctx, devEUI, filters, limit, 0)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.exportEnergyReadings(w, devEUIStr, format, readings)

	default:
		s.respondError(w, http.StatusBadRequest, "type must be live or energy")
	}
}

// exportLiveReadings writes live readings in the requested format
func (s *RESTServer) exportLiveReadings(w http.ResponseWriter, devEUIStr, format string, readings []*models.LiveReading) {
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"device_%s_live.csv\"", devEUIStr))

		writer := csv.NewWriter(w)
		defer writer.Flush()

		header := []string{
			"Timestamp",
			"Frame Counter",
			"Status",
			"AC Power (W)",
			"PV Power (W)",
			"PV1 Voltage (V)",
			"PV1 Current (A)",
			"Grid Voltage (V)",
			"Grid Frequency (Hz)",
			"Temperature (C)",
			"RSSI (dBm)",
			"SNR (dB)",
		}

		if err := writer.Write(header); err != nil {
			return
		}

		for _, reading := range readings {
			row := []string{
				reading.ReceivedAt.Format(time.RFC3339),
				strconv.FormatUint(uint64(reading.FCnt), 10),
				strconv.Itoa(int(reading.Status)),
				fmt.Sprintf("%.1f", reading.ACPower),
				fmt.Sprintf("%.1f", reading.PVPower),
				fmt.Sprintf("%.1f", reading.PV1Voltage),
				fmt.Sprintf("%.1f", reading.PV1Current),
				fmt.Sprintf("%.1f", reading.GridVoltage),
				fmt.Sprintf("%.2f", reading.GridFreq),
				fmt.Sprintf("%.1f", reading.Temperature),
				strconv.Itoa(reading.RSSI),
				fmt.Sprintf("%.1f", reading.SNR),
			}

			if err := writer.Write(row); err != nil {
				return
			}
		}

	case "json":
		fallthrough
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"device_%s_live.json\"", devEUIStr))
		json.NewEncoder(w).Encode(readings)
	}
}

// exportEnergyReadings writes energy readings in the requested format
func (s *RESTServer) exportEnergyReadings(w http.ResponseWriter, devEUIStr, format string, readings []*models.EnergyReading) {
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"device_%s_energy.csv\"", devEUIStr))

		writer := csv.NewWriter(w)
		defer writer.Flush()

		header := []string{
			"Timestamp",
			"Frame Counter",
			"Status",
			"Energy Today (kWh)",
			"Energy Total (kWh)",
			"PV1 Energy Total (kWh)",
			"Work Time (s)",
			"RSSI (dBm)",
			"SNR (dB)",
		}

		if err := writer.Write(header); err != nil {
			return
		}

		for _, reading := range readings {
			row := []string{
				reading.ReceivedAt.Format(time.RFC3339),
				strconv.FormatUint(uint64(reading.FCnt), 10),
				strconv.Itoa(int(reading.Status)),
				fmt.Sprintf("%.1f", reading.EnergyToday),
				fmt.Sprintf("%.1f", reading.EnergyTotal),
				fmt.Sprintf("%.1f", reading.PV1EnergyTotal),
				strconv.FormatUint(uint64(reading.WorkTime), 10),
				strconv.Itoa(reading.RSSI),
				fmt.Sprintf("%.1f", reading.SNR),
			}

			if err := writer.Write(row); err != nil {
				return
			}
		}

	case "json":
		fallthrough
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"device_%s_energy.json\"", devEUIStr))
		json.NewEncoder(w).Encode(readings)
	}
}

// parseTelemetryFilters reads the optional start/end query parameters
func parseTelemetryFilters(r *http.Request) (storage.TelemetryFilters, error) {
	var filters storage.TelemetryFilters

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, fmt.Errorf("invalid start time")
		}
		filters.StartTime = &t
	}

	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, fmt.Errorf("invalid end time")
		}
		filters.EndTime = &t
	}

	return filters, nil
}
