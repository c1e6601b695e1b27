package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lorawan-node/pv-node/internal/models"
	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// ========== Device Methods ==========

// CreateDevice creates a new device
func (s *PostgresStore) CreateDevice(ctx context.Context, device *models.Device) error {
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	var devAddrBytes []byte
	if device.DevAddr != nil {
		devAddrBytes = (*device.DevAddr)[:]
	}

	query := `
        INSERT INTO devices (
            dev_eui, created_at, updated_at, name, description, is_disabled,
            dev_addr, f_cnt_up, f_cnt_down, long_sleep
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		device.DevEUI[:], device.CreatedAt, device.UpdatedAt, device.Name,
		device.Description, device.IsDisabled, devAddrBytes,
		device.FCntUp, device.FCntDown, device.LongSleep,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetDevice gets a device by DevEUI
func (s *PostgresStore) GetDevice(ctx context.Context, devEUI lorawan.EUI64) (*models.Device, error) {
	query := `
        SELECT dev_eui, created_at, updated_at, name, description, is_disabled,
               dev_addr, last_seen_at, f_cnt_up, f_cnt_down, last_rssi, last_snr,
               battery_mv, battery_updated_at, long_sleep
        FROM devices
        WHERE dev_eui = $1`

	device := &models.Device{}
	var devEUIBytes, devAddrBytes []byte

	err := s.getDB().QueryRowContext(ctx, query, devEUI[:]).Scan(
		&devEUIBytes, &device.CreatedAt, &device.UpdatedAt, &device.Name,
		&device.Description, &device.IsDisabled, &devAddrBytes,
		&device.LastSeenAt, &device.FCntUp, &device.FCntDown,
		&device.LastRSSI, &device.LastSNR, &device.BatteryMV,
		&device.BatteryUpdatedAt, &device.LongSleep,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	// Convert byte arrays
	copy(device.DevEUI[:], devEUIBytes)
	if devAddrBytes != nil {
		device.DevAddr = &lorawan.DevAddr{}
		copy((*device.DevAddr)[:], devAddrBytes)
	}

	return device, nil
}

// UpdateDevice updates a device
func (s *PostgresStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now()

	var devAddrBytes []byte
	if device.DevAddr != nil {
		devAddrBytes = (*device.DevAddr)[:]
	}

	query := `
        UPDATE devices SET
            updated_at = $2, name = $3, description = $4, is_disabled = $5,
            dev_addr = $6, last_seen_at = $7, f_cnt_up = $8, f_cnt_down = $9,
            last_rssi = $10, last_snr = $11, battery_mv = $12,
            battery_updated_at = $13, long_sleep = $14
        WHERE dev_eui = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		device.DevEUI[:], device.UpdatedAt, device.Name, device.Description,
		device.IsDisabled, devAddrBytes, device.LastSeenAt, device.FCntUp,
		device.FCntDown, device.LastRSSI, device.LastSNR, device.BatteryMV,
		device.BatteryUpdatedAt, device.LongSleep,
	)

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteDevice deletes a device
func (s *PostgresStore) DeleteDevice(ctx context.Context, devEUI lorawan.EUI64) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM devices WHERE dev_eui = $1", devEUI[:])
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListDevices lists devices
func (s *PostgresStore) ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error) {
	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	query := `
        SELECT dev_eui, created_at, updated_at, name, description, is_disabled,
               dev_addr, last_seen_at, f_cnt_up, f_cnt_down, last_rssi, last_snr,
               battery_mv, battery_updated_at, long_sleep
        FROM devices
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device := &models.Device{}
		var devEUIBytes, devAddrBytes []byte

		err := rows.Scan(
			&devEUIBytes, &device.CreatedAt, &device.UpdatedAt, &device.Name,
			&device.Description, &device.IsDisabled, &devAddrBytes,
			&device.LastSeenAt, &device.FCntUp, &device.FCntDown,
			&device.LastRSSI, &device.LastSNR, &device.BatteryMV,
			&device.BatteryUpdatedAt, &device.LongSleep,
		)
		if err != nil {
			return nil, 0, err
		}

		// Convert byte arrays
		copy(device.DevEUI[:], devEUIBytes)
		if devAddrBytes != nil {
			device.DevAddr = &lorawan.DevAddr{}
			copy((*device.DevAddr)[:], devAddrBytes)
		}

		devices = append(devices, device)
	}

	return devices, count, nil
}

// UpsertDeviceSeen writes the radio state carried by an uplink, creating the
// device row when the DevEUI is not known yet
func (s *PostgresStore) UpsertDeviceSeen(ctx context.Context, device *models.Device) error {
	now := time.Now()
	device.UpdatedAt = now
	if device.LastSeenAt == nil {
		device.LastSeenAt = &now
	}

	var devAddrBytes []byte
	if device.DevAddr != nil {
		devAddrBytes = (*device.DevAddr)[:]
	}

	query := `
        INSERT INTO devices (
            dev_eui, created_at, updated_at, name, description, is_disabled,
            dev_addr, last_seen_at, f_cnt_up, f_cnt_down, last_rssi, last_snr
        ) VALUES (
            $1, $2, $2, $3, $4, false, $5, $6, $7, $8, $9, $10
        )
        ON CONFLICT (dev_eui) DO UPDATE SET
            updated_at = EXCLUDED.updated_at,
            dev_addr = EXCLUDED.dev_addr,
            last_seen_at = EXCLUDED.last_seen_at,
            f_cnt_up = EXCLUDED.f_cnt_up,
            last_rssi = EXCLUDED.last_rssi,
            last_snr = EXCLUDED.last_snr`

	_, err := s.getDB().ExecContext(ctx, query,
		device.DevEUI[:], now, device.Name, device.Description,
		devAddrBytes, device.LastSeenAt, device.FCntUp,
		device.FCntDown, device.LastRSSI, device.LastSNR,
	)

	return err
}

// ActivateDevice starts a fresh session on join: new device address, frame
// counters reset. The row is created when the DevEUI is not known yet
func (s *PostgresStore) ActivateDevice(ctx context.Context, device *models.Device) error {
	now := time.Now()
	device.UpdatedAt = now
	if device.LastSeenAt == nil {
		device.LastSeenAt = &now
	}
	device.FCntUp = 0
	device.FCntDown = 0

	var devAddrBytes []byte
	if device.DevAddr != nil {
		devAddrBytes = (*device.DevAddr)[:]
	}

	query := `
        INSERT INTO devices (
            dev_eui, created_at, updated_at, name, description, is_disabled,
            dev_addr, last_seen_at, f_cnt_up, f_cnt_down
        ) VALUES (
            $1, $2, $2, $3, $4, false, $5, $6, 0, 0
        )
        ON CONFLICT (dev_eui) DO UPDATE SET
            updated_at = EXCLUDED.updated_at,
            dev_addr = EXCLUDED.dev_addr,
            last_seen_at = EXCLUDED.last_seen_at,
            f_cnt_up = 0,
            f_cnt_down = 0`

	_, err := s.getDB().ExecContext(ctx, query,
		device.DevEUI[:], now, device.Name, device.Description,
		devAddrBytes, device.LastSeenAt,
	)

	return err
}

// UpdateDeviceStatus records the node status reported on the status port
func (s *PostgresStore) UpdateDeviceStatus(ctx context.Context, devEUI lorawan.EUI64, batteryMV int, longSleep bool) error {
	now := time.Now()

	query := `
        UPDATE devices SET
            updated_at = $2, battery_mv = $3, battery_updated_at = $2, long_sleep = $4
        WHERE dev_eui = $1`

	result, err := s.getDB().ExecContext(ctx, query, devEUI[:], now, batteryMV, longSleep)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// IncrementDeviceFCntDown bumps the downlink frame counter
func (s *PostgresStore) IncrementDeviceFCntDown(ctx context.Context, devEUI lorawan.EUI64) error {
	query := `
        UPDATE devices SET
            updated_at = $2, f_cnt_down = f_cnt_down + 1
        WHERE dev_eui = $1`

	result, err := s.getDB().ExecContext(ctx, query, devEUI[:], time.Now())
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
