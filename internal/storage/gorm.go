package storage

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectorFunc is used to inject a database connection method into
// NewStore.
type ConnectorFunc func() (*gorm.DB, error)

// NewSQLiteConnector opens a local sqlite database. An empty dsn uses a
// shared in-memory database, which is what the tests run against.
func NewSQLiteConnector(dsn string) ConnectorFunc {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}
		return db, err
	}
}

// NewPostgreSQLConnector opens a connection to a postgresql database,
// retrying until the server accepts it.
func NewPostgreSQLConnector(dsn string, log *zap.Logger) ConnectorFunc {
	return func() (*gorm.DB, error) {
		for {
			log.Info("connecting to database")
			db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Silent),
			})
			if err == nil {
				return db, nil
			}
			log.Error("database connection failed, retrying", zap.Error(err))
			time.Sleep(3 * time.Second)
		}
	}
}

// NewStore connects via the given connector, migrates the schema and
// wraps the handle in a Store.
func NewStore(connect ConnectorFunc) (Store, error) {
	db, err := connect()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Device{}, &Context{}, &DataPoint{}, &DeviceEvent{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &gormStore{db: db}, nil
}

type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) Transaction(fn func(tx Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) GetDevice(id uint) (*Device, error) {
	var device Device
	if err := s.db.First(&device, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &device, nil
}

func (s *gormStore) FindDeviceByUUID(uuid string) (*Device, error) {
	var device Device
	if err := s.db.Where("uuid = ?", uuid).First(&device).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &device, nil
}

func (s *gormStore) ListDevices() ([]Device, error) {
	var devices []Device
	if err := s.db.Order("id").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *gormStore) ListOnlineDevices() ([]Device, error) {
	var devices []Device
	if err := s.db.Where("is_online = ?", true).Order("id").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *gormStore) SaveDevice(device *Device) error {
	return s.db.Save(device).Error
}

func (s *gormStore) FindContext(deviceID uint, contextID string) (*Context, error) {
	var ctx Context
	err := s.db.Where("device_id = ? AND context_id = ?", deviceID, contextID).First(&ctx).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &ctx, nil
}

func (s *gormStore) ListContexts(deviceID uint) ([]Context, error) {
	var contexts []Context
	if err := s.db.Where("device_id = ?", deviceID).Order("id").Find(&contexts).Error; err != nil {
		return nil, err
	}
	return contexts, nil
}

func (s *gormStore) SaveContext(context *Context) error {
	return s.db.Save(context).Error
}

func (s *gormStore) FindPoint(contextID uint, pointID string) (*DataPoint, error) {
	var point DataPoint
	err := s.db.Where("context_id = ? AND point_id = ?", contextID, pointID).First(&point).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &point, nil
}

func (s *gormStore) ListPoints(contextID uint) ([]DataPoint, error) {
	var points []DataPoint
	if err := s.db.Where("context_id = ?", contextID).Order("id").Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

func (s *gormStore) SavePoint(point *DataPoint) error {
	return s.db.Save(point).Error
}

func (s *gormStore) AppendEvent(event *DeviceEvent) error {
	return s.db.Create(event).Error
}

func (s *gormStore) ListEvents(deviceID uint, limit int) ([]DeviceEvent, error) {
	var events []DeviceEvent
	q := s.db.Where("device_id = ?", deviceID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
