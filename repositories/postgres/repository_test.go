package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/repositories"
	"github.com/structsense/dashboard/services"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewDBFromConn(conn, zap.NewNop()), mock
}

var deviceRowColumns = []string{
	"id", "device_uid", "name", "type", "building_name", "location_description", "thresholds",
	"notification_email", "api_key_hash", "installed_at", "connection_status", "last_seen_at",
	"created_at", "updated_at",
}

func deviceRow(id int64, uid string, now time.Time) []driver.Value {
	return []driver.Value{
		id, uid, "North wall", "tilt", "Block A", nil,
		[]byte(`{"version":"v2","tilt_warning_percent":30,"tilt_alert_percent":50,"distance_warning_percent":5,"distance_alert_percent":10}`),
		nil, "hash", now, true, now, now, now,
	}
}

func TestDeviceRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeviceRepository(db, zap.NewNop())
	device := models.NewDevice("ESP-001", "North wall", "tilt", models.DefaultThresholdsV2(), time.Time{})
	device.APIKeyHash = "hash"

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO devices")).
		WithArgs("ESP-001", "North wall", "tilt", nil, nil, sqlmock.AnyArg(), nil, "hash",
			sqlmock.AnyArg(), false, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, repo.Create(context.Background(), device))
	assert.Equal(t, int64(7), device.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeviceRepository(db, zap.NewNop())
	device := models.NewDevice("ESP-001", "North wall", "tilt", models.DefaultThresholdsV2(), time.Time{})

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO devices")).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := repo.Create(context.Background(), device)
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeviceRepository(db, zap.NewNop())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM devices WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(deviceRowColumns).AddRow(deviceRow(7, "ESP-001", now)...))

	device, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "ESP-001", device.DeviceUID)
	assert.Equal(t, "Block A", *device.BuildingName)
	assert.Nil(t, device.LocationDescription)
	assert.Equal(t, models.DefaultThresholdsV2(), device.Thresholds)
	assert.True(t, device.ConnectionStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_GetByUIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeviceRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM devices WHERE device_uid = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(deviceRowColumns))

	_, err := repo.GetByUID(context.Background(), "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeviceRepository(db, zap.NewNop())
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM devices ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(deviceRowColumns).
			AddRow(deviceRow(2, "ESP-002", now)...).
			AddRow(deviceRow(1, "ESP-001", now.Add(-time.Hour))...))

	devices, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "ESP-002", devices[0].DeviceUID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_UpdateAndDeleteNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeviceRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE devices")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM devices WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Device{ID: 9, Thresholds: models.DefaultThresholdsV1()})
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	err = repo.Delete(context.Background(), 9)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_DisconnectStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeviceRepository(db, zap.NewNop())
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("SET connection_status = false")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DisconnectStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingRepository_ListProcessedBuildsFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db, zap.NewNop())
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	cols := []string{"id", "device_id", "raw_data_id", "tilt_diff_x", "tilt_diff_y", "tilt_diff_z",
		"distance_diff_mm", "tilt_change_percent", "distance_change_percent", "status", "created_at"}

	mock.ExpectQuery(`WHERE device_id = \$1 AND status = \$2 AND created_at >= \$3 AND created_at < \$4\s+ORDER BY created_at DESC, id DESC\s+LIMIT \$5`).
		WithArgs(int64(3), models.StatusAlert, from, to, 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(11), int64(3), int64(21), 0.1, 0.2, 0.0, -4.0, 12.5, 8.0, "ALERT", from.Add(time.Hour)))

	readings, err := repo.ListProcessed(context.Background(), models.ReadingFilter{
		DeviceID: 3, Status: models.StatusAlert, From: &from, To: &to, Limit: 50,
	})
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, models.StatusAlert, readings[0].Status)
	assert.Equal(t, -4.0, readings[0].DistanceDiffMM)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingRepository_ListProcessedNoLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db, zap.NewNop())

	mock.ExpectQuery(`WHERE device_id = \$1\s+ORDER BY created_at DESC, id DESC$`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	readings, err := repo.ListProcessed(context.Background(), models.ReadingFilter{DeviceID: 3})
	require.NoError(t, err)
	assert.Empty(t, readings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingRepository_Baseline(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db, zap.NewNop())
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at ASC, id ASC")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "tilt_x", "tilt_y", "tilt_z", "distance_mm", "created_at"}).
			AddRow(int64(1), int64(3), 0.0, 0.0, 1.0, 1000.0, now))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at ASC, id ASC")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	baseline, err := repo.GetBaseline(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, baseline.DistanceMM)

	_, err = repo.GetBaseline(context.Background(), 4)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingRepository_DeleteByDevice(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM processed_sensor_data")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM raw_sensor_data")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.DeleteByDevice(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateAndGetByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	user := models.NewUser("Ops@Example.com", "hash", "Ops", models.RoleAdmin)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(user.ID, "ops@example.com", "hash", "Ops", models.RoleAdmin, true, user.CreatedAt, user.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("ops@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "is_active", "created_at", "updated_at"}).
			AddRow(user.ID.String(), user.Email, "hash", "Ops", "admin", true, user.CreatedAt, user.UpdatedAt))

	require.NoError(t, repo.Create(context.Background(), user))

	got, err := repo.GetByEmail(context.Background(), " OPS@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Errors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(id).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), models.NewUser("a@example.com", "h", "A", models.RoleViewer))
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	_, err = repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = repo.GetByID(context.Background(), id)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_InsertAndList(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())
	userID := uuid.New()
	log := models.NewAuditLog(models.AuditActionDeviceDeleted, "device").
		WithUser(userID).
		WithResource("7").
		WithDetails(map[string]string{"device_uid": "ESP-001"})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY timestamp DESC")).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "resource_type", "resource_id",
			"details", "ip_address", "user_agent", "request_id", "status_code", "error_message", "timestamp"}).
			AddRow(log.ID.String(), userID.String(), "device_deleted", "device", "7", []byte(`{"device_uid":"ESP-001"}`),
				"", "", "req-1", nil, nil, log.Timestamp))

	require.NoError(t, repo.Insert(context.Background(), log))

	logs, err := repo.List(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionDeviceDeleted, logs[0].Action)
	assert.Equal(t, userID, *logs[0].UserID)
	assert.Equal(t, "7", *logs[0].ResourceID)
	assert.Nil(t, logs[0].StatusCode)
	assert.JSONEq(t, `{"device_uid":"ESP-001"}`, string(logs[0].Details))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_InTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())
	repo := NewReadingRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM processed_sensor_data")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM raw_sensor_data")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		_, err := repo.DeleteByDevice(ctx, 1)
		return err
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM processed_sensor_data")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err = tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		_, err := repo.DeleteByDevice(ctx, 1)
		return err
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_HealthCheck(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer conn.Close()
	db := NewDBFromConn(conn, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RepositoryJoinsTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())
	readings := NewReadingRepository(db, zap.NewNop())
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO raw_sensor_data")).
		WithArgs(int64(3), 0.1, 0.2, 0.3, 120.0, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	mock.ExpectCommit()

	raw := &models.RawReading{DeviceID: 3, TiltX: 0.1, TiltY: 0.2, TiltZ: 0.3, DistanceMM: 120, CreatedAt: now}
	err := services.WithTransaction(context.Background(), tm, func(ctx context.Context, tx repositories.Transaction) error {
		bound, ok := GetTransactionFromContext(ctx)
		require.True(t, ok)
		assert.Same(t, tx, bound)
		_, isTx := GetExecutor(ctx, db).(*sql.Tx)
		assert.True(t, isTx)
		return readings.WithTx(tx).InsertRaw(ctx, raw)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(41), raw.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
