package database

import (
	"fmt"

	"opsboard/internal/model"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// WatchedTables are the tables whose row changes are published on the change feed.
var WatchedTables = []string{
	model.ApprovalRequest{}.TableName(),
	model.PurchaseOrder{}.TableName(),
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database connected")
	return db, nil
}

// Migrate creates the tables and, on postgres, the triggers that feed the change feed.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.ApprovalRequest{},
		&model.PurchaseOrder{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return InstallChangeFeed(db, WatchedTables...)
}

// notifyFunction publishes every row change as {table, operation, before, after} on the
// "<table>_changes" channel. row_to_json keys are the column names, which the models'
// JSON tags follow.
const notifyFunction = `
CREATE OR REPLACE FUNCTION opsboard_notify_change() RETURNS trigger AS $$
DECLARE
	payload json;
BEGIN
	payload := json_build_object(
		'table', TG_TABLE_NAME,
		'operation', lower(TG_OP),
		'before', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE row_to_json(OLD) END,
		'after', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE row_to_json(NEW) END
	);
	PERFORM pg_notify(TG_TABLE_NAME || '_changes', payload::text);
	RETURN COALESCE(NEW, OLD);
END;
$$ LANGUAGE plpgsql;`

// InstallChangeFeed (re)creates the notify trigger on each table. It is idempotent.
func InstallChangeFeed(db *gorm.DB, tables ...string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(notifyFunction).Error; err != nil {
			return fmt.Errorf("create notify function: %w", err)
		}
		for _, table := range tables {
			trigger := table + "_notify_change"
			if err := tx.Exec(fmt.Sprintf(`DROP TRIGGER IF EXISTS %q ON %q`, trigger, table)).Error; err != nil {
				return fmt.Errorf("drop trigger on %s: %w", table, err)
			}
			create := fmt.Sprintf(
				`CREATE TRIGGER %q AFTER INSERT OR UPDATE OR DELETE ON %q FOR EACH ROW EXECUTE FUNCTION opsboard_notify_change()`,
				trigger, table,
			)
			if err := tx.Exec(create).Error; err != nil {
				return fmt.Errorf("create trigger on %s: %w", table, err)
			}
		}
		return nil
	})
}
