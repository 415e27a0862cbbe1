package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	goerrors "github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Store is the bun backed AccountRepository.
type Store struct {
	db       *bun.DB
	accounts repository.Repository[*registration.Account]
}

var _ registration.AccountRepository = (*Store)(nil)

// NewAccountsRepository returns the generic accounts repository.
func NewAccountsRepository(db *bun.DB) repository.Repository[*registration.Account] {
	handlers := repository.ModelHandlers[*registration.Account]{
		NewRecord: func() *registration.Account {
			return &registration.Account{}
		},
		GetID: func(record *registration.Account) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *registration.Account, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewStore(db *bun.DB) *Store {
	return &Store{
		db:       db,
		accounts: NewAccountsRepository(db),
	}
}

func (s *Store) Validate() error {
	if s.db == nil {
		return errors.New("store db should be initialized")
	}

	if s.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	return nil
}

func (s *Store) MustValidate() {
	if err := s.Validate(); err != nil {
		log.Panic(err)
	}
}

func (s *Store) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return s.db.RunInTx(ctx, opts, f)
	}
}

// Accounts exposes the generic accounts repository.
func (s *Store) Accounts() repository.Repository[*registration.Account] {
	return s.accounts
}

// CreateAccountAndProfile inserts both records in one transaction.
func (s *Store) CreateAccountAndProfile(ctx context.Context, account *registration.Account, profile *registration.RegistrationProfile) error {
	if account == nil || profile == nil {
		return goerrors.New("account and profile are required", goerrors.CategoryBadInput)
	}

	return s.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findAccount(ctx, tx, account.Email, account.Username)
		if err == nil {
			if equalFold(existing.Email, account.Email) {
				return registration.ErrDuplicateEmail
			}
			return registration.ErrDuplicateUsername
		}
		if !registration.IsRecordNotFound(err) {
			return err
		}

		if _, err := s.accounts.CreateTx(ctx, tx, account); err != nil {
			return mapConstraintError(err)
		}

		profile.AccountID = account.ID
		if profile.ID == uuid.Nil {
			profile.ID = uuid.New()
		}
		if profile.Version == 0 {
			profile.Version = 1
		}

		if _, err := tx.NewInsert().Model(profile).Exec(ctx); err != nil {
			return mapConstraintError(err)
		}

		return nil
	})
}

// FindProfileByToken loads a profile and its account by activation key.
func (s *Store) FindProfileByToken(ctx context.Context, token string) (*registration.RegistrationProfile, error) {
	profile := &registration.RegistrationProfile{}
	err := s.db.NewSelect().
		Model(profile).
		Relation("Account").
		Where("?TableAlias.activation_key = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return profile, nil
}

// SaveProfile persists profile flags and the account active flag. It fails
// with ErrConcurrentModification when the stored version moved on.
func (s *Store) SaveProfile(ctx context.Context, profile *registration.RegistrationProfile) error {
	if profile == nil {
		return goerrors.New("profile is required", goerrors.CategoryBadInput)
	}

	expected := profile.Version

	err := s.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		next := *profile
		next.Version = expected + 1

		res, err := tx.NewUpdate().
			Model(&next).
			Column(
				"verified",
				"activated",
				"moderated",
				"moderator_id",
				"moderation_time",
				"moderation_status",
				"moderation_comment",
				"updated_at",
				"version",
			).
			Where("id = ?", profile.ID).
			Where("version = ?", expected).
			Exec(ctx)
		if err != nil {
			return err
		}

		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return registration.ErrConcurrentModification
		}

		if profile.Account == nil {
			return nil
		}

		_, err = tx.NewUpdate().
			Model(profile.Account).
			Column("is_active", "updated_at").
			Where("id = ?", profile.AccountID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}

	profile.Version = expected + 1
	return nil
}

// FindAccountByEmailOrUsername matches either value. Empty values are
// ignored and the email comparison is case-insensitive.
func (s *Store) FindAccountByEmailOrUsername(ctx context.Context, email, username string) (*registration.Account, error) {
	return findAccount(ctx, s.db, email, username)
}

func findAccount(ctx context.Context, db bun.IDB, email, username string) (*registration.Account, error) {
	if email == "" && username == "" {
		return nil, registration.ErrRecordNotFound
	}

	account := &registration.Account{}
	err := db.NewSelect().
		Model(account).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if email != "" {
				q = q.WhereOr("lower(?TableAlias.email) = lower(?)", email)
			}
			if username != "" {
				q = q.WhereOr("?TableAlias.username = ?", username)
			}
			return q
		}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return account, nil
}

// ListProfiles returns profiles matching filter, oldest first.
func (s *Store) ListProfiles(ctx context.Context, filter registration.ProfileFilter) ([]*registration.RegistrationProfile, error) {
	var profiles []*registration.RegistrationProfile

	q := s.db.NewSelect().
		Model(&profiles).
		Relation("Account").
		OrderExpr("?TableAlias.created_at ASC")

	if filter.Verified != nil {
		q = q.Where("?TableAlias.verified = ?", *filter.Verified)
	}
	if filter.Activated != nil {
		q = q.Where("?TableAlias.activated = ?", *filter.Activated)
	}
	if filter.Moderated != nil {
		q = q.Where("?TableAlias.moderated = ?", *filter.Moderated)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return profiles, nil
}

// PurgeExpired deletes accounts that were never activated and registered
// at or before cutoff, together with their profiles. It returns the number
// of accounts removed.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	var removed int

	err := s.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var ids []uuid.UUID
		err := tx.NewSelect().
			Model((*registration.RegistrationProfile)(nil)).
			Column("account_id").
			Where("activated = ?", false).
			Where("created_at <= ?", cutoff.UTC()).
			Scan(ctx, &ids)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.NewDelete().
			Model((*registration.RegistrationProfile)(nil)).
			Where("account_id IN (?)", bun.In(ids)).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*registration.Account)(nil)).
			Where("id IN (?)", bun.In(ids)).
			Where("is_active = ?", false).
			Exec(ctx)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		removed = int(n)
		return err
	})

	return removed, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return registration.ErrRecordNotFound
	}
	return err
}
