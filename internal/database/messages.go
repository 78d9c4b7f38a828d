package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/go-teamchat/internal/reaction"
	"github.com/npezzotti/go-teamchat/internal/scope"
	"github.com/npezzotti/go-teamchat/internal/sequence"
)

// Author names and avatars are resolved from the account at read time.
// The stored copies only show for authors whose account is gone.
const messageColumns = "m.scope, m.seq, m.author_id, COALESCE(a.name, m.author_name), " +
	"COALESCE(a.avatar, m.author_avatar), m.client_time, m.content, m.image_url, " +
	"m.reactions, m.btn_reactions, m.created_at, m.updated_at"

const messageFrom = " FROM messages m LEFT JOIN accounts a ON a.id = m.author_id "

// seqOrder sorts ids of different widths numerically.
const seqOrder = " ORDER BY length(m.seq), m.seq"

func scanMessage(row rowScanner) (Message, error) {
	var (
		m         Message
		reactions []byte
		buttons   []byte
		updatedAt sql.NullTime
	)

	err := row.Scan(
		&m.Scope,
		&m.Seq,
		&m.AuthorId,
		&m.AuthorName,
		&m.AuthorAvatar,
		&m.ClientTime,
		&m.Content,
		&m.ImageUrl,
		&reactions,
		&buttons,
		&m.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	if m.Reactions, err = decodeReactions(reactions); err != nil {
		return Message{}, err
	}

	if len(buttons) > 0 {
		if err := json.Unmarshal(buttons, &m.BtnReactions); err != nil {
			return Message{}, fmt.Errorf("decode btn_reactions: %w", err)
		}
	}

	if updatedAt.Valid {
		t := updatedAt.Time
		m.UpdatedAt = &t
	}

	return m, nil
}

func decodeReactions(raw []byte) (reaction.Set, error) {
	set := reaction.Set{}
	if len(raw) == 0 {
		return set, nil
	}

	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode reactions: %w", err)
	}

	return set.Normalize(), nil
}

// NextSeq reserves the next id in s. The counter row is created on first
// use and incremented in the same statement, so concurrent callers always
// receive distinct ids. Nothing is reserved when the scope is full.
func (db *PgTeamChatRepository) NextSeq(ctx context.Context, s scope.Scope) (seq string, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var n int
	err = tx.QueryRowContext(ctx,
		"INSERT INTO scope_counters (scope, next_seq) VALUES ($1, 1) "+
			"ON CONFLICT (scope) DO UPDATE SET next_seq = scope_counters.next_seq + 1 "+
			"RETURNING next_seq - 1",
		s.Path(),
	).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("reserve seq: %w", err)
	}

	seq, err = sequence.Format(n, db.seqWidth)
	if err != nil {
		return "", err
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}

	return seq, nil
}

// CreateMessage inserts a message under params.Seq. An existing message
// under the same key is never overwritten.
func (db *PgTeamChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	btn, err := json.Marshal(nonNil(params.BtnReactions))
	if err != nil {
		return Message{}, err
	}

	var (
		channelId sql.NullString
		dmA, dmB  sql.NullString
		now       = time.Now().UTC()
		msgScope  = params.Scope.Path()
	)
	switch params.Scope.Kind {
	case scope.KindChannel, scope.KindThread:
		channelId = nullString(params.Scope.ChannelId)
	case scope.KindDirect:
		dmA, dmB = nullString(params.Scope.MemberA), nullString(params.Scope.MemberB)
	}

	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO messages (scope, seq, channel_id, dm_a, dm_b, author_id, author_name, author_avatar, "+
			"client_time, content, image_url, reactions, btn_reactions, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, '{}', $12, $13)",
		msgScope,
		params.Seq,
		channelId,
		dmA,
		dmB,
		params.AuthorId,
		params.AuthorName,
		params.AuthorAvatar,
		params.ClientTime,
		params.Content,
		params.ImageUrl,
		string(btn),
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Message{}, fmt.Errorf("%w: %s/%s", sequence.ErrSequenceConflict, msgScope, params.Seq)
		}
		return Message{}, err
	}

	return Message{
		Scope:        msgScope,
		Seq:          params.Seq,
		AuthorId:     params.AuthorId,
		AuthorName:   params.AuthorName,
		AuthorAvatar: params.AuthorAvatar,
		ClientTime:   params.ClientTime,
		Content:      params.Content,
		ImageUrl:     params.ImageUrl,
		Reactions:    reaction.Set{},
		BtnReactions: params.BtnReactions,
		CreatedAt:    now,
	}, nil
}

// UpdateMessageContent edits the text of a message written by authorId.
func (db *PgTeamChatRepository) UpdateMessageContent(ctx context.Context, s scope.Scope, seq, authorId, content string) (Message, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET content = $4, updated_at = $5 WHERE scope = $1 AND seq = $2 AND author_id = $3",
		s.Path(),
		seq,
		authorId,
		content,
		time.Now().UTC(),
	)
	if err != nil {
		return Message{}, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return Message{}, sql.ErrNoRows
	}

	return db.getMessage(ctx, db.conn, s, seq, false)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *PgTeamChatRepository) getMessage(ctx context.Context, q querier, s scope.Scope, seq string, lock bool) (Message, error) {
	query := "SELECT " + messageColumns + messageFrom + "WHERE m.scope = $1 AND m.seq = $2"
	if lock {
		query += " FOR UPDATE OF m"
	}

	return scanMessage(q.QueryRowContext(ctx, query, s.Path(), seq))
}

// ApplyReaction merges op into a message's reactions. The row is locked for
// the duration, so concurrent reactions on the same message are applied one
// after another and none is lost. changed is false when op was a no-op.
func (db *PgTeamChatRepository) ApplyReaction(ctx context.Context, s scope.Scope, seq string, op reaction.Op) (msg Message, changed bool, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	msg, err = db.getMessage(ctx, tx, s, seq, true)
	if err != nil {
		return Message{}, false, err
	}

	changed, err = msg.Reactions.Apply(op)
	if err != nil {
		return Message{}, false, err
	}

	if changed {
		var raw []byte
		raw, err = json.Marshal(msg.Reactions)
		if err != nil {
			return Message{}, false, err
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE messages SET reactions = $3 WHERE scope = $1 AND seq = $2",
			s.Path(),
			seq,
			string(raw),
		)
		if err != nil {
			return Message{}, false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Message{}, false, err
	}

	return msg, changed, nil
}

func (db *PgTeamChatRepository) GetMessages(s scope.Scope) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+messageFrom+"WHERE m.scope = $1"+seqOrder,
		s.Path(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgTeamChatRepository) GetThreadInfo(channelId, parentSeq string) (ThreadInfo, error) {
	s, err := scope.Thread(channelId, parentSeq)
	if err != nil {
		return ThreadInfo{}, err
	}

	var (
		info ThreadInfo
		last sql.NullTime
	)
	err = db.conn.QueryRow(
		"SELECT COUNT(*), MAX(created_at) FROM messages WHERE scope = $1",
		s.Path(),
	).Scan(&info.Count, &last)
	if err != nil {
		return ThreadInfo{}, err
	}

	if last.Valid {
		t := last.Time
		info.LastMessageTime = &t
	}

	return info, nil
}

// SearchMessages finds messages containing query, ignoring case, in the
// channels accountId belongs to and in accountId's direct messages.
func (db *PgTeamChatRepository) SearchMessages(accountId, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT m.scope, m.seq, m.author_id, COALESCE(a.name, m.author_name), COALESCE(a.avatar, m.author_avatar), "+
			"m.content, COALESCE(m.channel_id, ''), COALESCE(c.name, ''), "+
			"COALESCE(CASE WHEN m.dm_a = $1 THEN m.dm_b::text ELSE m.dm_a::text END, '') "+
			"FROM messages m "+
			"LEFT JOIN accounts a ON a.id = m.author_id "+
			"LEFT JOIN channels c ON c.id = m.channel_id "+
			"WHERE m.content ILIKE $2 ESCAPE '\\' AND ("+
			"EXISTS (SELECT 1 FROM channel_members cm WHERE cm.channel_id = m.channel_id AND cm.account_id = $1) "+
			"OR m.dm_a = $1 OR m.dm_b = $1) "+
			"ORDER BY m.created_at DESC LIMIT $3",
		accountId,
		likeContains(query),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := make([]SearchHit, 0)
	for rows.Next() {
		var h SearchHit
		err := rows.Scan(
			&h.Scope,
			&h.Seq,
			&h.AuthorId,
			&h.AuthorName,
			&h.AuthorAvatar,
			&h.Content,
			&h.ChannelId,
			&h.ChannelName,
			&h.DirectPeer,
		)
		if err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		if h.ChannelId != "" {
			h.DirectPeer = ""
		}
		hits = append(hits, h)
	}

	return hits, rows.Err()
}

func (db *PgTeamChatRepository) UpdateReadMarker(accountId string, s scope.Scope, seq string) error {
	_, err := db.conn.Exec(
		"INSERT INTO read_markers (account_id, scope, seq, updated_at) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (account_id, scope) DO UPDATE SET seq = EXCLUDED.seq, updated_at = EXCLUDED.updated_at "+
			"WHERE length(read_markers.seq) < length(EXCLUDED.seq) "+
			"OR (length(read_markers.seq) = length(EXCLUDED.seq) AND read_markers.seq < EXCLUDED.seq)",
		accountId,
		s.Path(),
		seq,
		time.Now().UTC(),
	)

	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeContains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func likePrefix(s string) string {
	return likeEscaper.Replace(s) + "%"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
