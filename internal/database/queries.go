package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const accountColumns = "id, username, display_name, email, password_hash, " +
	"theme, terminal_font, font_size, show_scan_lines, terminal_sounds, " +
	"whatsapp_connected, whatsapp_phone_number, instagram_connected, instagram_username, " +
	"last_login_at, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (User, error) {
	var u User
	var lastLogin sql.NullTime
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.DisplayName,
		&u.Email,
		&u.PasswordHash,
		&u.Settings.Theme,
		&u.Settings.TerminalFont,
		&u.Settings.FontSize,
		&u.Settings.ShowScanLines,
		&u.Settings.TerminalSounds,
		&u.WhatsappConnected,
		&u.WhatsappPhoneNumber,
		&u.InstagramConnected,
		&u.InstagramUsername,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time
	}

	return u, err
}

func (db *PgRepository) CreateAccount(params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO accounts (username, display_name, email, password_hash, last_login_at, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+accountColumns,
		params.Username,
		params.DisplayName,
		params.Email,
		params.PasswordHash,
		now,
		now,
		now,
	)

	return scanAccount(row)
}

func (db *PgRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	return scanAccount(row)
}

func (db *PgRepository) GetAccountByUsername(username string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE username = $1 LIMIT 1",
		username,
	)

	return scanAccount(row)
}

func (db *PgRepository) UpdateSettings(params UpdateSettingsParams) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET theme = $2, terminal_font = $3, font_size = $4, "+
			"show_scan_lines = $5, terminal_sounds = $6, updated_at = $7 "+
			"WHERE id = $1 RETURNING "+accountColumns,
		params.UserId,
		params.Settings.Theme,
		params.Settings.TerminalFont,
		params.Settings.FontSize,
		params.Settings.ShowScanLines,
		params.Settings.TerminalSounds,
		time.Now().UTC(),
	)

	return scanAccount(row)
}

func (db *PgRepository) UpdateLastLogin(accountId int) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET last_login_at = $2 WHERE id = $1",
		accountId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgRepository) UpdateServiceConnection(params UpdateServiceConnectionParams) error {
	var query string
	switch params.Service {
	case "whatsapp":
		query = "UPDATE accounts SET whatsapp_connected = $2, whatsapp_phone_number = $3, updated_at = $4 WHERE id = $1"
	case "instagram":
		query = "UPDATE accounts SET instagram_connected = $2, instagram_username = $3, updated_at = $4 WHERE id = $1"
	default:
		return fmt.Errorf("unknown service %q", params.Service)
	}

	_, err := db.conn.Exec(query, params.UserId, params.Connected, params.Handle, time.Now().UTC())

	return err
}

func (db *PgRepository) CreateChat(params CreateChatParams) (Chat, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO chats (external_id, name, description, chat_type, created_by, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"RETURNING id, external_id, name, description, chat_type, created_by, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Description,
		params.Type,
		params.CreatedBy,
		now,
		now,
	)

	var chat Chat
	err = row.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Name,
		&chat.Description,
		&chat.Type,
		&chat.CreatedBy,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		return Chat{}, err
	}

	// the creator is implicitly a participant
	_, err = tx.Exec(
		"INSERT INTO chat_participants (chat_id, account_id, created_at) VALUES ($1, $2, $3)",
		chat.Id,
		params.CreatedBy,
		now,
	)
	if err != nil {
		return Chat{}, err
	}

	if err = tx.Commit(); err != nil {
		return Chat{}, err
	}

	return chat, nil
}

func (db *PgRepository) GetChatByExternalId(externalId string) (Chat, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, description, chat_type, created_by, created_at, updated_at "+
			"FROM chats WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var chat Chat
	err := row.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Name,
		&chat.Description,
		&chat.Type,
		&chat.CreatedBy,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)

	return chat, err
}

func (db *PgRepository) ListPublicChats() ([]Chat, error) {
	query := `
		SELECT
				c.id,
				c.external_id,
				c.name,
				c.description,
				c.chat_type,
				c.created_by,
				c.created_at,
				c.updated_at,
				a.id,
				a.username,
				a.display_name
		FROM chats c
		LEFT JOIN chat_participants cp ON cp.chat_id = c.id
		LEFT JOIN accounts a ON a.id = cp.account_id
		WHERE c.chat_type = 'public'
		ORDER BY c.updated_at DESC, cp.id ASC;
`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list public chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	index := make(map[int]int)
	for rows.Next() {
		var (
			chat        Chat
			accountId   sql.NullInt64
			username    sql.NullString
			displayName sql.NullString
		)

		err := rows.Scan(
			&chat.Id,
			&chat.ExternalId,
			&chat.Name,
			&chat.Description,
			&chat.Type,
			&chat.CreatedBy,
			&chat.CreatedAt,
			&chat.UpdatedAt,
			&accountId,
			&username,
			&displayName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		i, ok := index[chat.Id]
		if !ok {
			chat.Participants = make([]Participant, 0)
			chats = append(chats, chat)
			i = len(chats) - 1
			index[chat.Id] = i
		}

		if accountId.Valid {
			chats[i].Participants = append(chats[i].Participants, Participant{
				AccountId:   int(accountId.Int64),
				Username:    username.String,
				DisplayName: displayName.String,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return chats, nil
}

func (db *PgRepository) IsParticipant(chatId, accountId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM chat_participants WHERE chat_id = $1 AND account_id = $2 LIMIT 1",
		chatId,
		accountId,
	)

	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

// AddParticipant atomically adds an account to a chat and records the
// accompanying system message. The insert is a set-add: a concurrent or
// repeated join reports added=false and writes nothing.
func (db *PgRepository) AddParticipant(chatId, accountId int, sysMsg CreateMessageParams) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.Exec(
		"INSERT INTO chat_participants (chat_id, account_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (chat_id, account_id) DO NOTHING",
		chatId,
		accountId,
		now,
	)
	if err != nil {
		return false, err
	}

	added, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if added == 0 {
		tx.Rollback()
		return false, nil
	}

	if err = insertMessage(tx, sysMsg, now); err != nil {
		return false, err
	}

	if err = bumpChat(tx, chatId, now); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

// RemoveParticipant is the inverse of AddParticipant; removed=false means
// the account was not a member and nothing was written.
func (db *PgRepository) RemoveParticipant(chatId, accountId int, sysMsg CreateMessageParams) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.Exec(
		"DELETE FROM chat_participants WHERE chat_id = $1 AND account_id = $2",
		chatId,
		accountId,
	)
	if err != nil {
		return false, err
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		tx.Rollback()
		return false, nil
	}

	now := time.Now().UTC()
	if err = insertMessage(tx, sysMsg, now); err != nil {
		return false, err
	}

	if err = bumpChat(tx, chatId, now); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	metadata, err := marshalMetadata(params.Metadata)
	if err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO messages (chat_id, sender_id, content, kind, metadata, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at",
		params.ChatId,
		params.SenderId,
		params.Content,
		params.Kind,
		metadata,
		now,
	)

	msg := Message{
		ChatId:   params.ChatId,
		SenderId: params.SenderId,
		Content:  params.Content,
		Kind:     params.Kind,
		Metadata: params.Metadata,
	}
	if err = row.Scan(&msg.Id, &msg.CreatedAt); err != nil {
		return Message{}, err
	}

	if err = bumpChat(tx, params.ChatId, now); err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgRepository) GetMessages(chatId int, before time.Time, limit int) ([]Message, error) {
	query := "SELECT m.id, m.chat_id, m.sender_id, a.username, a.display_name, " +
		"m.content, m.kind, m.metadata, m.created_at " +
		"FROM messages m JOIN accounts a ON a.id = m.sender_id " +
		"WHERE m.chat_id = $1"

	args := []any{chatId}
	if !before.IsZero() {
		args = append(args, before.UTC())
		query += fmt.Sprintf(" AND m.created_at < $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY m.created_at DESC, m.id DESC LIMIT $%d", len(args))

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		var metadata []byte
		err = rows.Scan(
			&msg.Id,
			&msg.ChatId,
			&msg.SenderId,
			&msg.SenderUsername,
			&msg.SenderDisplayName,
			&msg.Content,
			&msg.Kind,
			&metadata,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if len(metadata) > 0 {
			if err = json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for message %d: %w", msg.Id, err)
			}
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func insertMessage(tx *sql.Tx, params CreateMessageParams, now time.Time) error {
	metadata, err := marshalMetadata(params.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO messages (chat_id, sender_id, content, kind, metadata, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		params.ChatId,
		params.SenderId,
		params.Content,
		params.Kind,
		metadata,
		now,
	)

	return err
}

func bumpChat(tx *sql.Tx, chatId int, now time.Time) error {
	_, err := tx.Exec("UPDATE chats SET updated_at = $2 WHERE id = $1", chatId, now)

	return err
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}

	return json.Marshal(metadata)
}
