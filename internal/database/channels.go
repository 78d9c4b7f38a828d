package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const addMemberQuery = "INSERT INTO channel_members (channel_id, account_id, name, email, avatar, joined_at) " +
	"VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (channel_id, account_id) DO NOTHING"

func (db *PgTeamChatRepository) CreateChannel(params CreateChannelParams) (channel Channel, err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Channel{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	var creatorId sql.NullString
	row := tx.QueryRow(
		"INSERT INTO channels (id, name, description, creator_id, creator_name, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, name, description, creator_id, creator_name, created_at, updated_at",
		params.Id,
		params.Name,
		params.Description,
		params.Creator.Id,
		params.Creator.Name,
		now,
	)
	err = row.Scan(
		&channel.Id,
		&channel.Name,
		&channel.Description,
		&creatorId,
		&channel.CreatorName,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: channel %q exists", ErrConflict, params.Id)
		}
		return Channel{}, err
	}
	channel.CreatorId = creatorId.String

	_, err = tx.Exec(
		addMemberQuery,
		channel.Id,
		params.Creator.Id,
		params.Creator.Name,
		params.Creator.EmailAddress,
		params.Creator.Avatar,
		now,
	)
	if err != nil {
		return Channel{}, err
	}

	if err = tx.Commit(); err != nil {
		return Channel{}, err
	}

	channel.Members = []Member{{
		AccountId:    params.Creator.Id,
		Name:         params.Creator.Name,
		EmailAddress: params.Creator.EmailAddress,
		Avatar:       params.Creator.Avatar,
		JoinedAt:     now,
	}}

	return channel, nil
}

func (db *PgTeamChatRepository) GetChannel(channelId string) (Channel, error) {
	var (
		c         Channel
		creatorId sql.NullString
	)

	row := db.conn.QueryRow(
		"SELECT id, name, description, creator_id, creator_name, created_at, updated_at "+
			"FROM channels WHERE id = $1 LIMIT 1",
		channelId,
	)
	err := row.Scan(&c.Id, &c.Name, &c.Description, &creatorId, &c.CreatorName, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Channel{}, err
	}
	c.CreatorId = creatorId.String

	members, err := db.membersOf([]string{c.Id})
	if err != nil {
		return Channel{}, err
	}
	c.Members = members[c.Id]

	return c, nil
}

// ListChannels returns the channels accountId is a member of.
func (db *PgTeamChatRepository) ListChannels(accountId string) ([]Channel, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.name, c.description, c.creator_id, c.creator_name, c.created_at, c.updated_at "+
			"FROM channels c JOIN channel_members m ON m.channel_id = c.id "+
			"WHERE m.account_id = $1 ORDER BY c.name, c.id",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := make([]Channel, 0)
	var ids []string
	for rows.Next() {
		var (
			c         Channel
			creatorId sql.NullString
		)
		if err := rows.Scan(&c.Id, &c.Name, &c.Description, &creatorId, &c.CreatorName, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.CreatorId = creatorId.String
		channels = append(channels, c)
		ids = append(ids, c.Id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return channels, nil
	}

	members, err := db.membersOf(ids)
	if err != nil {
		return nil, err
	}
	for i := range channels {
		channels[i].Members = members[channels[i].Id]
	}

	return channels, nil
}

func (db *PgTeamChatRepository) membersOf(channelIds []string) (map[string][]Member, error) {
	rows, err := db.conn.Query(
		"SELECT channel_id, account_id, name, email, avatar, joined_at FROM channel_members "+
			"WHERE channel_id = ANY($1) ORDER BY channel_id, position",
		pq.Array(channelIds),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch members: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Member, len(channelIds))
	for rows.Next() {
		var (
			channelId string
			m         Member
		)
		if err := rows.Scan(&channelId, &m.AccountId, &m.Name, &m.EmailAddress, &m.Avatar, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out[channelId] = append(out[channelId], m)
	}

	return out, rows.Err()
}

func (db *PgTeamChatRepository) AddChannelMember(channelId string, user User) error {
	_, err := db.conn.Exec(
		addMemberQuery,
		channelId,
		user.Id,
		user.Name,
		user.EmailAddress,
		user.Avatar,
		time.Now().UTC(),
	)

	return err
}

func (db *PgTeamChatRepository) DeleteChannel(channelId string) (err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM messages WHERE channel_id = $1", channelId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM scope_counters WHERE scope LIKE $1", likePrefix("channels/"+channelId+"/"))
	if err != nil {
		return err
	}

	res, err := tx.Exec("DELETE FROM channels WHERE id = $1", channelId)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		err = sql.ErrNoRows
		return err
	}

	return tx.Commit()
}
