package repository

import (
	"context"

	registration "github.com/goliatone/go-registration"
	"github.com/uptrace/bun"
)

// CreateSchema creates the accounts and registration_profiles tables from
// the bun models. It is used for sqlite; postgres deployments run
// MigratePostgres instead.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*registration.Account)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	if _, err := db.NewCreateTable().
		Model((*registration.RegistrationProfile)(nil)).
		IfNotExists().
		ForeignKey(`("account_id") REFERENCES "accounts" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}

	_, err := db.NewCreateIndex().
		Model((*registration.RegistrationProfile)(nil)).
		Index("idx_registration_profiles_pending").
		IfNotExists().
		Column("activated", "created_at").
		Exec(ctx)
	return err
}
