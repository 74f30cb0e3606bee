package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/werkbank/fakturo/internal/audit/domain"
	customerdomain "github.com/werkbank/fakturo/internal/customer/domain"
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	paymentdomain "github.com/werkbank/fakturo/internal/payment/domain"
	"gorm.io/gorm"
)

// All billing tables are created automatically on startup so a fresh
// install is usable without a separate migration step.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate is the sqlite path. The embedded SQL targets postgres, so
// local and test databases build the schema from the models instead.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&customerdomain.Customer{},
		&invoicedomain.Invoice{},
		&invoicedomain.Position{},
		&dunningdomain.Notice{},
		&paymentdomain.Payment{},
		&auditdomain.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Partial unique index backing the one-active-chain rule. AutoMigrate
	// cannot express the predicate, so it is created by hand.
	return conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_dunning_notices_active_level
		 ON dunning_notices (invoice_id, level)
		 WHERE status NOT IN ('rejected', 'settled', 'cancelled')`,
	).Error
}
