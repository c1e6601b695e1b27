package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-node/pv-node/internal/models"
	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// ========== Live Reading Methods ==========

// CreateLiveReading stores a decoded live telemetry uplink
func (s *PostgresStore) CreateLiveReading(ctx context.Context, reading *models.LiveReading) error {
	if reading.ID == uuid.Nil {
		reading.ID = uuid.New()
	}

	if reading.ReceivedAt.IsZero() {
		reading.ReceivedAt = time.Now()
	}

	query := `
        INSERT INTO live_readings (
            id, dev_eui, received_at, f_cnt, status, ac_power, pv_power,
            pv1_voltage, pv1_current, grid_voltage, grid_freq, temperature,
            rssi, snr
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.getDB().ExecContext(ctx, query,
		reading.ID, reading.DevEUI[:], reading.ReceivedAt, reading.FCnt,
		reading.Status, reading.ACPower, reading.PVPower, reading.PV1Voltage,
		reading.PV1Current, reading.GridVoltage, reading.GridFreq,
		reading.Temperature, reading.RSSI, reading.SNR,
	)

	return err
}

// ListLiveReadings lists live readings for a device, newest first
func (s *PostgresStore) ListLiveReadings(ctx context.Context, devEUI lorawan.EUI64, filters TelemetryFilters, limit, offset int) ([]*models.LiveReading, int64, error) {
	query := "SELECT COUNT(*) FROM live_readings WHERE dev_eui = $1"
	args := []interface{}{devEUI[:]}
	argCount := 1

	if filters.StartTime != nil {
		argCount++
		query += fmt.Sprintf(" AND received_at >= $%d", argCount)
		args = append(args, *filters.StartTime)
	}

	if filters.EndTime != nil {
		argCount++
		query += fmt.Sprintf(" AND received_at <= $%d", argCount)
		args = append(args, *filters.EndTime)
	}

	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	selectQuery := strings.Replace(query, "SELECT COUNT(*)",
		"SELECT id, dev_eui, received_at, f_cnt, status, ac_power, pv_power, pv1_voltage, pv1_current, grid_voltage, grid_freq, temperature, rssi, snr", 1)

	argCount++
	selectQuery += fmt.Sprintf(" ORDER BY received_at DESC LIMIT $%d", argCount)
	args = append(args, limit)

	argCount++
	selectQuery += fmt.Sprintf(" OFFSET $%d", argCount)
	args = append(args, offset)

	rows, err := s.getDB().QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var readings []*models.LiveReading
	for rows.Next() {
		reading := &models.LiveReading{}
		var devEUIBytes []byte

		err := rows.Scan(
			&reading.ID, &devEUIBytes, &reading.ReceivedAt, &reading.FCnt,
			&reading.Status, &reading.ACPower, &reading.PVPower,
			&reading.PV1Voltage, &reading.PV1Current, &reading.GridVoltage,
			&reading.GridFreq, &reading.Temperature, &reading.RSSI, &reading.SNR,
		)
		if err != nil {
			return nil, 0, err
		}

		copy(reading.DevEUI[:], devEUIBytes)
		readings = append(readings, reading)
	}

	return readings, count, nil
}

// ========== Energy Reading Methods ==========

// CreateEnergyReading stores a decoded energy counter uplink
func (s *PostgresStore) CreateEnergyReading(ctx context.Context, reading *models.EnergyReading) error {
	if reading.ID == uuid.Nil {
		reading.ID = uuid.New()
	}

	if reading.ReceivedAt.IsZero() {
		reading.ReceivedAt = time.Now()
	}

	query := `
        INSERT INTO energy_readings (
            id, dev_eui, received_at, f_cnt, status, energy_today,
            energy_total, pv1_energy_total, work_time, rssi, snr
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.getDB().ExecContext(ctx, query,
		reading.ID, reading.DevEUI[:], reading.ReceivedAt, reading.FCnt,
		reading.Status, reading.EnergyToday, reading.EnergyTotal,
		reading.PV1EnergyTotal, reading.WorkTime, reading.RSSI, reading.SNR,
	)

	return err
}

// ListEnergyReadings lists energy readings for a device, newest first
func (s *PostgresStore) ListEnergyReadings(ctx context.Context, devEUI lorawan.EUI64, filters TelemetryFilters, limit, offset int) ([]*models.EnergyReading, int64, error) {
	query := "SELECT COUNT(*) FROM energy_readings WHERE dev_eui = $1"
	args := []interface{}{devEUI[:]}
	argCount := 1

	if filters.StartTime != nil {
		argCount++
		query += fmt.Sprintf(" AND received_at >= $%d", argCount)
		args = append(args, *filters.StartTime)
	}

	if filters.EndTime != nil {
		argCount++
		query += fmt.Sprintf(" AND received_at <= $%d", argCount)
		args = append(args, *filters.EndTime)
	}

	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	selectQuery := strings.Replace(query, "SELECT COUNT(*)",
		"SELECT id, dev_eui, received_at, f_cnt, status, energy_today, energy_total, pv1_energy_total, work_time, rssi, snr", 1)

	argCount++
	selectQuery += fmt.Sprintf(" ORDER BY received_at DESC LIMIT $%d", argCount)
	args = append(args, limit)

	argCount++
	selectQuery += fmt.Sprintf(" OFFSET $%d", argCount)
	args = append(args, offset)

	rows, err := s.getDB().QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var readings []*models.EnergyReading
	for rows.Next() {
		reading := &models.EnergyReading{}
		var devEUIBytes []byte

		err := rows.Scan(
			&reading.ID, &devEUIBytes, &reading.ReceivedAt, &reading.FCnt,
			&reading.Status, &reading.EnergyToday, &reading.EnergyTotal,
			&reading.PV1EnergyTotal, &reading.WorkTime, &reading.RSSI, &reading.SNR,
		)
		if err != nil {
			return nil, 0, err
		}

		copy(reading.DevEUI[:], devEUIBytes)
		readings = append(readings, reading)
	}

	return readings, count, nil
}

// EnergyDaily aggregates energy readings into per-day peaks over the last
// days. The inverter resets energy_today at midnight, so the day's maximum
// is that day's production.
func (s *PostgresStore) EnergyDaily(ctx context.Context, devEUI lorawan.EUI64, days int) ([]*models.EnergyDay, error) {
	since := time.Now().AddDate(0, 0, -days)

	query := `
        SELECT date_trunc('day', received_at) AS day,
               MAX(energy_today) AS energy_today,
               MAX(energy_total) AS energy_total
        FROM energy_readings
        WHERE dev_eui = $1 AND received_at >= $2
        GROUP BY day
        ORDER BY day DESC`

	rows, err := s.getDB().QueryContext(ctx, query, devEUI[:], since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.EnergyDay
	for rows.Next() {
		day := &models.EnergyDay{}
		if err := rows.Scan(&day.Day, &day.EnergyToday, &day.EnergyTotal); err != nil {
			return nil, err
		}
		result = append(result, day)
	}

	return result, nil
}
