package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-node/pv-node/internal/models"
	"github.com/lorawan-node/pv-node/pkg/lorawan"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error)

	// Device methods
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, devEUI lorawan.EUI64) (*models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	DeleteDevice(ctx context.Context, devEUI lorawan.EUI64) error
	ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error)

	// Radio state written on every uplink. Inserts the row when the DevEUI
	// is not known yet.
	UpsertDeviceSeen(ctx context.Context, device *models.Device) error
	ActivateDevice(ctx context.Context, device *models.Device) error
	UpdateDeviceStatus(ctx context.Context, devEUI lorawan.EUI64, batteryMV int, longSleep bool) error
	IncrementDeviceFCntDown(ctx context.Context, devEUI lorawan.EUI64) error

	// Telemetry methods
	CreateLiveReading(ctx context.Context, reading *models.LiveReading) error
	ListLiveReadings(ctx context.Context, devEUI lorawan.EUI64, filters TelemetryFilters, limit, offset int) ([]*models.LiveReading, int64, error)
	CreateEnergyReading(ctx context.Context, reading *models.EnergyReading) error
	ListEnergyReadings(ctx context.Context, devEUI lorawan.EUI64, filters TelemetryFilters, limit, offset int) ([]*models.EnergyReading, int64, error)
	EnergyDaily(ctx context.Context, devEUI lorawan.EUI64, days int) ([]*models.EnergyDay, error)

	// Downlink command queue
	CreateDownlinkCommand(ctx context.Context, cmd *models.DownlinkCommand) error
	NextPendingCommand(ctx context.Context, devEUI lorawan.EUI64) (*models.DownlinkCommand, error)
	MarkCommandSent(ctx context.Context, id uuid.UUID) error
	ListDownlinkCommands(ctx context.Context, devEUI lorawan.EUI64, limit, offset int) ([]*models.DownlinkCommand, int64, error)
	DeleteDownlinkCommand(ctx context.Context, id uuid.UUID) error

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// Close the store
	Close() error
}

// TelemetryFilters narrows telemetry queries to a time range
type TelemetryFilters struct {
	StartTime *time.Time
	EndTime   *time.Time
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	DevEUI    *lorawan.EUI64
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}
