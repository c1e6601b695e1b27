package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-node/pv-node/internal/models"
	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// ========== Downlink Command Methods ==========

// CreateDownlinkCommand queues a command for the node's next uplink
func (s *PostgresStore) CreateDownlinkCommand(ctx context.Context, cmd *models.DownlinkCommand) error {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}

	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}

	cmd.IsPending = true

	query := `
        INSERT INTO downlink_commands (
            id, dev_eui, name, f_port, payload, is_pending, created_at, reference
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.getDB().ExecContext(ctx, query,
		cmd.ID, cmd.DevEUI[:], cmd.Name, cmd.FPort, cmd.Payload,
		cmd.IsPending, cmd.CreatedAt, cmd.Reference,
	)

	return err
}

// NextPendingCommand returns the oldest pending command for a device
func (s *PostgresStore) NextPendingCommand(ctx context.Context, devEUI lorawan.EUI64) (*models.DownlinkCommand, error) {
	query := `
        SELECT id, dev_eui, name, f_port, payload, is_pending, created_at,
               sent_at, reference
        FROM downlink_commands
        WHERE dev_eui = $1 AND is_pending = true
        ORDER BY created_at ASC
        LIMIT 1`

	cmd := &models.DownlinkCommand{}
	var devEUIBytes []byte

	err := s.getDB().QueryRowContext(ctx, query, devEUI[:]).Scan(
		&cmd.ID, &devEUIBytes, &cmd.Name, &cmd.FPort, &cmd.Payload,
		&cmd.IsPending, &cmd.CreatedAt, &cmd.SentAt, &cmd.Reference,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	copy(cmd.DevEUI[:], devEUIBytes)

	return cmd, nil
}

// MarkCommandSent marks a command as delivered in a receive window
func (s *PostgresStore) MarkCommandSent(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE downlink_commands SET
            is_pending = false, sent_at = $2
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query, id, time.Now())
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

// ListDownlinkCommands lists queued and sent commands for a device
func (s *PostgresStore) ListDownlinkCommands(ctx context.Context, devEUI lorawan.EUI64, limit, offset int) ([]*models.DownlinkCommand, int64, error) {
	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM downlink_commands WHERE dev_eui = $1", devEUI[:],
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	query := `
        SELECT id, dev_eui, name, f_port, payload, is_pending, created_at,
               sent_at, reference
        FROM downlink_commands
        WHERE dev_eui = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, devEUI[:], limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var cmds []*models.DownlinkCommand
	for rows.Next() {
		cmd := &models.DownlinkCommand{}
		var devEUIBytes []byte

		err := rows.Scan(
			&cmd.ID, &devEUIBytes, &cmd.Name, &cmd.FPort, &cmd.Payload,
			&cmd.IsPending, &cmd.CreatedAt, &cmd.SentAt, &cmd.Reference,
		)
		if err != nil {
			return nil, 0, err
		}

		copy(cmd.DevEUI[:], devEUIBytes)
		cmds = append(cmds, cmd)
	}

	return cmds, count, nil
}

// DeleteDownlinkCommand cancels a command that has not been sent yet
func (s *PostgresStore) DeleteDownlinkCommand(ctx context.Context, id uuid.UUID) error {
	query := `
        DELETE FROM downlink_commands
        WHERE id = $1 AND is_pending = true`

	result, err := s.getDB().ExecContext(ctx, query, id)
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
