package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const accountColumns = "id, name, COALESCE(email, ''), avatar, guest, password_hash, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Name,
		&u.EmailAddress,
		&u.Avatar,
		&u.Guest,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgTeamChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO accounts (id, name, email, avatar, guest, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING "+accountColumns,
		uuid.NewString(),
		params.Name,
		nullString(params.EmailAddress),
		params.Avatar,
		params.Guest,
		params.PasswordHash,
		now,
	)

	u, err := scanAccount(row)
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("%w: email already registered", ErrConflict)
	}

	return u, err
}

// UpdateAccount writes the account and rewrites the copies of its profile
// stored on channels in one transaction. Either both happen or neither does.
func (db *PgTeamChatRepository) UpdateAccount(params UpdateAccountParams) (u User, res PropagateResult, err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return User{}, res, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var oldName string
	err = tx.QueryRow("SELECT name FROM accounts WHERE id = $1 FOR UPDATE", params.UserId).Scan(&oldName)
	if err != nil {
		return User{}, res, err
	}

	row := tx.QueryRow(
		"UPDATE accounts SET name = $2, email = $3, avatar = $4, "+
			"password_hash = COALESCE(NULLIF($5, ''), password_hash), updated_at = $6 "+
			"WHERE id = $1 RETURNING "+accountColumns,
		params.UserId,
		params.Name,
		nullString(params.EmailAddress),
		params.Avatar,
		params.PasswordHash,
		time.Now().UTC(),
	)

	u, err = scanAccount(row)
	if isUniqueViolation(err) {
		err = fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if err != nil {
		return User{}, res, err
	}

	res, err = propagateProfile(tx, oldName, u)
	if err != nil {
		return User{}, res, err
	}

	if err = tx.Commit(); err != nil {
		return User{}, res, err
	}

	return u, res, nil
}

func (db *PgTeamChatRepository) GetAccountById(id string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	return scanAccount(row)
}

func (db *PgTeamChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	return scanAccount(row)
}

func (db *PgTeamChatRepository) ListAccounts() ([]User, error) {
	rows, err := db.conn.Query("SELECT " + accountColumns + " FROM accounts ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

const sweepMembersQuery = "UPDATE channel_members SET name = $2, email = $3, avatar = $4 " +
	"WHERE account_id = $1 AND (name, email, avatar) IS DISTINCT FROM ($2, $3, $4) " +
	"RETURNING channel_id"

const sweepCreatorsByIdQuery = "UPDATE channels SET creator_name = $2, updated_at = $3 " +
	"WHERE creator_id = $1 AND creator_name <> $2 RETURNING id"

// Rows written before creator ids were recorded are matched on the old
// name, the only link they have to an account.
const sweepLegacyCreatorsQuery = "UPDATE channels SET creator_name = $2, updated_at = $3 " +
	"WHERE creator_id IS NULL AND creator_name = $1 RETURNING id"

// propagateProfile rewrites the copies of user's profile stored on channels.
// Members and creators are matched by id.
func propagateProfile(tx *sql.Tx, oldName string, user User) (res PropagateResult, err error) {
	res.Members, err = collectIds(tx, sweepMembersQuery,
		user.Id, user.Name, user.EmailAddress, user.Avatar,
	)
	if err != nil {
		return res, fmt.Errorf("sweep members: %w", err)
	}

	res.CreatorsById, err = collectIds(tx, sweepCreatorsByIdQuery,
		user.Id, user.Name, time.Now().UTC(),
	)
	if err != nil {
		return res, fmt.Errorf("sweep creators: %w", err)
	}

	if oldName != "" && oldName != user.Name {
		res.CreatorsByName, err = collectIds(tx, sweepLegacyCreatorsQuery,
			oldName, user.Name, time.Now().UTC(),
		)
		if err != nil {
			return res, fmt.Errorf("sweep legacy creators: %w", err)
		}
	}

	return res, nil
}

func collectIds(tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
