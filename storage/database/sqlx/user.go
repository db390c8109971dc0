package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
)

const userColumns = `id, email, password_hash, first_name, last_name, phone_number, role, department,
	push_notifications_enabled, email_summary_enabled, is_active, created_at, updated_at, last_login`

type userRow struct {
	ID                       string      `db:"id"`
	Email                    string      `db:"email"`
	PasswordHash             []byte      `db:"password_hash"`
	FirstName                null.String `db:"first_name"`
	LastName                 null.String `db:"last_name"`
	PhoneNumber              null.String `db:"phone_number"`
	Role                     string      `db:"role"`
	Department               string      `db:"department"`
	PushNotificationsEnabled null.Bool   `db:"push_notifications_enabled"`
	EmailSummaryEnabled      null.Bool   `db:"email_summary_enabled"`
	IsActive                 bool        `db:"is_active"`
	CreatedAt                time.Time   `db:"created_at"`
	UpdatedAt                time.Time   `db:"updated_at"`
	LastLogin                null.Time   `db:"last_login"`
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repository{exec: exec}}
}

func (repo userRepository) boil(usr user.User) userRow {
	return userRow{
		ID:                       usr.ID,
		Email:                    usr.Email,
		PasswordHash:             usr.PasswordHash,
		FirstName:                usr.FirstName,
		LastName:                 usr.LastName,
		PhoneNumber:              usr.PhoneNumber,
		Role:                     usr.Role,
		Department:               usr.Department,
		PushNotificationsEnabled: usr.PushNotificationsEnabled,
		EmailSummaryEnabled:      usr.EmailSummaryEnabled,
		IsActive:                 usr.IsActive,
		CreatedAt:                usr.CreatedAt.UTC(),
		UpdatedAt:                usr.UpdatedAt.UTC(),
		LastLogin:                usr.LastLogin,
	}
}

func (repo userRepository) unboil(row userRow) user.User {
	usr := user.User{
		ID:                       row.ID,
		Email:                    row.Email,
		PasswordHash:             row.PasswordHash,
		FirstName:                row.FirstName,
		LastName:                 row.LastName,
		PhoneNumber:              row.PhoneNumber,
		Role:                     row.Role,
		Department:               row.Department,
		PushNotificationsEnabled: row.PushNotificationsEnabled,
		EmailSummaryEnabled:      row.EmailSummaryEnabled,
		IsActive:                 row.IsActive,
		CreatedAt:                row.CreatedAt,
		UpdatedAt:                row.UpdatedAt,
		LastLogin:                row.LastLogin,
	}
	usr.ApplyDefaults()
	return usr
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}

	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM profiles WHERE LOWER(email) = LOWER($1) AND id <> ALL($2::uuid[]))`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, q, email, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	q := `INSERT INTO profiles (` + userColumns + `) VALUES (
		:id, :email, :password_hash, :first_name, :last_name, :phone_number, :role, :department,
		:push_notifications_enabled, :email_summary_enabled, :is_active, :created_at, :updated_at, :last_login)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, repo.boil(usr)); err != nil {
		if isPQError(err, uniqueViolation) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Role != "" {
			conds = append(conds, "role = ?")
			args = append(args, filter.Role)
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if filter.EmailSummaryEnabled != nil {
			conds = append(conds, "COALESCE(email_summary_enabled, false) = ?")
			args = append(args, *filter.EmailSummaryEnabled)
		}
	}

	q := `SELECT ` + userColumns + ` FROM profiles`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC`

	exe := repo.getExec(exec)
	var rows []userRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, repo.unboil(r))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		row userRow
		err error
	)
	exe := repo.getExec(exec)
	switch {
	case filter.ID != "":
		if _, err = uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		err = sqlx.GetContext(ctx, exe, &row, `SELECT `+userColumns+` FROM profiles WHERE id = $1`, filter.ID)
	case filter.Email != "":
		err = sqlx.GetContext(ctx, exe, &row, `SELECT `+userColumns+` FROM profiles WHERE LOWER(email) = LOWER($1)`, filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := `UPDATE profiles SET
		email = :email, password_hash = :password_hash, first_name = :first_name, last_name = :last_name,
		phone_number = :phone_number, role = :role, department = :department,
		push_notifications_enabled = :push_notifications_enabled, email_summary_enabled = :email_summary_enabled,
		is_active = :is_active, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, repo.boil(usr))
	if err != nil {
		if isPQError(err, uniqueViolation) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM profiles WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}
