package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/prite36/floraseven/internal/config"
	"github.com/prite36/floraseven/internal/health"
	"github.com/prite36/floraseven/internal/models"
)

// Store persists readings, image analyses, thresholds and watering events.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}

	s := New(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	log.Printf("[INFO] Connected to %s database", cfg.Database.Driver)
	return s, nil
}

// OpenSQLite opens and migrates a sqlite database, e.g.
// "file:flora?mode=memory&cache=shared" for an in-memory one.
func OpenSQLite(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&models.SensorReading{},
		&models.ImageAnalysis{},
		&models.Threshold{},
		&models.WateringEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// LogReadings appends readings. Duplicates of an existing
// (timestamp, node, sensor) row are ignored.
func (s *Store) LogReadings(ctx context.Context, readings []models.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}
	for i := range readings {
		readings[i].Timestamp = readings[i].Timestamp.UTC()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&readings).Error
	if err != nil {
		return fmt.Errorf("failed to log readings: %w", err)
	}
	return nil
}

// LatestValue returns the most recent value of a sensor on a node.
// ok is false when the sensor has never reported.
func (s *Store) LatestValue(ctx context.Context, nodeID, sensor string) (value float64, ok bool, err error) {
	var reading models.SensorReading
	err = s.db.WithContext(ctx).
		Where("node_id = ? AND sensor_type = ?", nodeID, sensor).
		Order("timestamp desc, id desc").
		Take(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query latest %s for %s: %w", sensor, nodeID, err)
	}
	return reading.Value, true, nil
}

// LastSeen returns the timestamp of the newest reading from a node.
func (s *Store) LastSeen(ctx context.Context, nodeID string) (time.Time, bool, error) {
	var reading models.SensorReading
	err := s.db.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("timestamp desc").
		Take(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last reading for %s: %w", nodeID, err)
	}
	return reading.Timestamp, true, nil
}

// PruneReadings deletes readings older than before.
func (s *Store) PruneReadings(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", before.UTC()).
		Delete(&models.SensorReading{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune readings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) LogImageAnalysis(ctx context.Context, a *models.ImageAnalysis) error {
	a.Timestamp = a.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to log image analysis: %w", err)
	}
	return nil
}

// LatestImageAnalysis returns nil when no image has been analyzed yet.
func (s *Store) LatestImageAnalysis(ctx context.Context) (*models.ImageAnalysis, error) {
	var a models.ImageAnalysis
	err := s.db.WithContext(ctx).Order("timestamp desc, id desc").Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest image analysis: %w", err)
	}
	return &a, nil
}

// LoadThresholds returns only the parameters that have a stored row.
func (s *Store) LoadThresholds(ctx context.Context) (map[health.Parameter]health.Threshold, error) {
	var rows []models.Threshold
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	out := make(map[health.Parameter]health.Threshold, len(rows))
	for _, r := range rows {
		p := health.Parameter(r.Parameter)
		if !p.Valid() {
			log.Printf("[WARN] Ignoring stored threshold for unknown parameter %q", r.Parameter)
			continue
		}
		out[p] = health.Threshold{Min: r.MinValue, Max: r.MaxValue}
	}
	return out, nil
}

// SaveThreshold inserts or replaces the bounds of one parameter.
func (s *Store) SaveThreshold(ctx context.Context, p health.Parameter, t health.Threshold) error {
	row := models.Threshold{
		Parameter: string(p),
		MinValue:  t.Min,
		MaxValue:  t.Max,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "parameter"}},
			DoUpdates: clause.AssignmentColumns([]string{"min_value", "max_value", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save threshold for %s: %w", p, err)
	}
	return nil
}

// SeedThresholds stores defaults for parameters that have no row yet.
func (s *Store) SeedThresholds(ctx context.Context, defaults map[health.Parameter]health.Threshold) error {
	rows := make([]models.Threshold, 0, len(defaults))
	now := time.Now().UTC()
	for _, p := range health.Parameters {
		t, ok := defaults[p]
		if !ok {
			continue
		}
		rows = append(rows, models.Threshold{Parameter: string(p), MinValue: t.Min, MaxValue: t.Max, UpdatedAt: now})
	}
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to seed thresholds: %w", err)
	}
	return nil
}

func (s *Store) LogWateringEvent(ctx context.Context, e *models.WateringEvent) error {
	e.RequestedAt = e.RequestedAt.UTC()
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to log watering event: %w", err)
	}
	return nil
}

// LastWateringEvent returns the newest event with the given pump state, or
// nil when there is none.
func (s *Store) LastWateringEvent(ctx context.Context, state string) (*models.WateringEvent, error) {
	var e models.WateringEvent
	err := s.db.WithContext(ctx).
		Where("state = ? AND status = ?", state, models.WateringRequested).
		Order("requested_at desc, id desc").
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last watering event: %w", err)
	}
	return &e, nil
}

// WateringHistory returns the newest events first.
func (s *Store) WateringHistory(ctx context.Context, limit int) ([]models.WateringEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.WateringEvent
	err := s.db.WithContext(ctx).
		Order("requested_at desc, id desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query watering history: %w", err)
	}
	return events, nil
}
