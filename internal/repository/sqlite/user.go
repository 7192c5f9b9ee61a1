package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/dishub/internal/apperror"
	"github.com/sakif/dishub/internal/model"
	"github.com/sakif/dishub/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, discord_id, username, global_name, email, avatar_url, created_at, updated_at`

// Upsert inserts or updates a user keyed by their Discord ID.
//
// INSERT ... ON CONFLICT DO UPDATE:
// One statement, so two logins racing for the same Discord account can't both
// take the "new user" branch. On conflict the existing row keeps its internal
// id and created_at; only the profile fields are refreshed. The managed-guild
// set is replaced in the same transaction. The row is then read back so the
// caller gets the canonical ID and timestamps.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(discord_id) DO UPDATE SET
				username    = excluded.username,
				global_name = excluded.global_name,
				email       = excluded.email,
				avatar_url  = excluded.avatar_url,
				updated_at  = excluded.updated_at`,
			xid.New().String(),
			user.DiscordID,
			user.Username,
			user.GlobalName,
			user.Email,
			user.AvatarURL,
			now,
			now,
		)
		if err != nil {
			return err
		}

		var userID string
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE discord_id = ?`, user.DiscordID,
		).Scan(&userID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM user_guilds WHERE user_id = ?`, userID); err != nil {
			return err
		}
		for i, guildID := range user.ManagedGuildIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_guilds (user_id, guild_id, position) VALUES (?, ?, ?)`,
				userID, guildID, i,
			); err != nil {
				return fmt.Errorf("inserting managed guild %s: %w", guildID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: upserting user (discordID=%s): %w", user.DiscordID, err)
	}

	stored, err := db.GetUserByDiscordID(ctx, user.DiscordID)
	if err != nil {
		return err
	}
	*user = *stored

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByDiscordID is how the chat bot maps a message author back to a
// directory account.
func (db *DB) GetUserByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	return db.getUser(ctx, `WHERE discord_id = ?`, discordID)
}

func (db *DB) getUser(ctx context.Context, where, arg string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where, arg,
	).Scan(
		&u.ID,
		&u.DiscordID,
		&u.Username,
		&u.GlobalName,
		&u.Email,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", arg, err)
	}

	guilds, err := managedGuilds(ctx, db.conn, u.ID)
	if err != nil {
		return nil, err
	}
	u.ManagedGuildIDs = guilds

	return &u, nil
}

func managedGuilds(ctx context.Context, q querier, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT guild_id FROM user_guilds WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading managed guilds: %w", err)
	}
	defer rows.Close()

	guilds := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning managed guild: %w", err)
		}
		guilds = append(guilds, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating managed guilds: %w", err)
	}
	return guilds, nil
}
