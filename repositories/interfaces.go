package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/structsense/dashboard/models"
)

var (
	// ErrNotFound is wrapped by repositories when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is wrapped by repositories when a unique constraint is violated
	ErrDuplicate = errors.New("record already exists")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// Update updates a user
	Update(ctx context.Context, user *models.User) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// DeviceRepository handles device data operations
type DeviceRepository interface {
	// Create inserts a device and sets its ID
	Create(ctx context.Context, device *models.Device) error

	// GetByID retrieves a device by ID
	GetByID(ctx context.Context, id int64) (*models.Device, error)

	// GetByUID retrieves a device by its hardware UID
	GetByUID(ctx context.Context, deviceUID string) (*models.Device, error)

	// List retrieves all devices, newest first
	List(ctx context.Context) ([]*models.Device, error)

	// Update updates the mutable fields of a device
	Update(ctx context.Context, device *models.Device) error

	// Delete deletes a device and, by cascade, its readings
	Delete(ctx context.Context, id int64) error

	// SetConnection records the connection flag and, when non-nil, the last seen time
	SetConnection(ctx context.Context, id int64, connected bool, lastSeenAt *time.Time) error

	// DisconnectStale marks connected devices not seen since cutoff as disconnected
	DisconnectStale(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) DeviceRepository
}

// ReadingRepository handles raw and processed sensor readings
type ReadingRepository interface {
	// InsertRaw inserts a raw reading and sets its ID
	InsertRaw(ctx context.Context, reading *models.RawReading) error

	// InsertProcessed inserts a processed reading and sets its ID
	InsertProcessed(ctx context.Context, reading *models.ProcessedReading) error

	// GetBaseline returns the earliest raw reading of a device
	GetBaseline(ctx context.Context, deviceID int64) (*models.RawReading, error)

	// ListProcessed returns processed readings newest first. A zero Limit means no limit.
	ListProcessed(ctx context.Context, filter models.ReadingFilter) ([]*models.ProcessedReading, error)

	// DeleteByDevice removes every raw and processed reading of a device
	DeleteByDevice(ctx context.Context, deviceID int64) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) ReadingRepository
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// List retrieves audit logs newest first with pagination
	List(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)

	// GetByUserID retrieves audit logs for a user with pagination
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)

	// GetByResource retrieves audit logs for a single resource
	GetByResource(ctx context.Context, resourceType, resourceID string, limit, offset int) ([]*models.AuditLog, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) AuditRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users     UserRepository
	Devices   DeviceRepository
	Readings  ReadingRepository
	AuditLogs AuditRepository
}
