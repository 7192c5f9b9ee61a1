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

// COMPILE-TIME INTERFACE CHECK:
// If *DB stops implementing repository.ServerRepository, this line fails
// to compile instead of the wiring in server.go failing later.
var _ repository.ServerRepository = (*DB)(nil)

const serverColumns = `id, name, description, banner_url, invite_url, member_count,
	owner_id, discord_guild_id, created_at, last_bumped_at`

// Create inserts a new server and its tags in one transaction.
//
// The caller sets CreatedAt and LastBumpedAt (the service decides the
// "just listed" policy); this method assigns the IDs.
func (db *DB) Create(ctx context.Context, server *model.Server) error {
	server.ID = xid.New().String()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now()
	}
	server.CreatedAt = fromMillis(toMillis(server.CreatedAt))
	server.LastBumpedAt = timeFromNull(nullMillis(server.LastBumpedAt))

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO servers (`+serverColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			server.ID,
			server.Name,
			server.Description,
			server.BannerURL,
			server.InviteURL,
			server.MemberCount,
			server.OwnerID,
			nullString(server.DiscordGuildID),
			toMillis(server.CreatedAt),
			nullMillis(server.LastBumpedAt),
		)
		if err != nil {
			return err
		}
		return insertTags(ctx, tx, server)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("discord guild", server.DiscordGuildID)
		}
		return fmt.Errorf("sqlite: creating server: %w", err)
	}

	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.Server, error) {
	return db.getOne(ctx, `WHERE id = ?`, id, func() error {
		return apperror.NotFound("server", id)
	})
}

func (db *DB) GetByGuildID(ctx context.Context, guildID string) (*model.Server, error) {
	return db.getOne(ctx, `WHERE discord_guild_id = ?`, guildID, func() error {
		return apperror.NotRegistered(guildID)
	})
}

func (db *DB) getOne(ctx context.Context, where string, arg string, notFound func() error) (*model.Server, error) {
	server, err := scanServer(db.conn.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound()
		}
		return nil, fmt.Errorf("sqlite: getting server (%s): %w", arg, err)
	}

	tags, err := loadTags(ctx, db.conn, `WHERE server_id = ?`, server.ID)
	if err != nil {
		return nil, err
	}
	server.Tags = tags[server.ID]
	if server.Tags == nil {
		server.Tags = []model.Tag{}
	}

	return server, nil
}

// List returns servers in no particular order; ordering is the listing
// package's job. Tags are loaded with one extra query after the server
// rows are closed, never per row.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers`
	var args []any
	if opts.OwnerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, opts.OwnerID)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing servers: %w", err)
	}

	servers := make([]model.Server, 0)
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning server row: %w", err)
		}
		servers = append(servers, *s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating servers: %w", err)
	}
	rows.Close()

	tagWhere := `WHERE server_id IN (SELECT id FROM servers)`
	var tagArgs []any
	if opts.OwnerID != "" {
		tagWhere = `WHERE server_id IN (SELECT id FROM servers WHERE owner_id = ?)`
		tagArgs = append(tagArgs, opts.OwnerID)
	}
	tags, err := loadTags(ctx, db.conn, tagWhere, tagArgs...)
	if err != nil {
		return nil, err
	}

	for i := range servers {
		servers[i].Tags = tags[servers[i].ID]
		if servers[i].Tags == nil {
			servers[i].Tags = []model.Tag{}
		}
	}

	return servers, nil
}

// Update writes the mutable columns and swaps the tag set in a single
// transaction: delete-all-then-insert, so readers never see a server with
// half its tags.
func (db *DB) Update(ctx context.Context, server *model.Server) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE servers
			 SET name = ?, description = ?, banner_url = ?, invite_url = ?,
			     member_count = ?, discord_guild_id = ?
			 WHERE id = ?`,
			server.Name,
			server.Description,
			server.BannerURL,
			server.InviteURL,
			server.MemberCount,
			nullString(server.DiscordGuildID),
			server.ID,
		)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperror.NotFound("server", server.ID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM server_tags WHERE server_id = ?`, server.ID); err != nil {
			return err
		}
		return insertTags(ctx, tx, server)
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		if isUniqueViolation(err) {
			return apperror.Conflict("discord guild", server.DiscordGuildID)
		}
		return fmt.Errorf("sqlite: updating server %s: %w", server.ID, err)
	}

	return nil
}

// Delete removes the tags and then the server in one transaction. The FK
// has ON DELETE CASCADE as well; deleting tags explicitly keeps the
// behaviour independent of the foreign_keys pragma.
func (db *DB) Delete(ctx context.Context, id string) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM server_tags WHERE server_id = ?`, id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperror.NotFound("server", id)
		}
		return nil
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return fmt.Errorf("sqlite: deleting server %s: %w", id, err)
	}

	return nil
}

// BumpIfEligible is the atomic check-and-set behind a bump.
//
// WHY ONE STATEMENT?
// Reading last_bumped_at, comparing in Go, then writing would let two
// concurrent requests both read the old value and both succeed. Putting the
// comparison in the WHERE clause makes SQLite evaluate it under the write
// lock: the second writer re-evaluates against the first writer's value and
// matches zero rows.
func (db *DB) BumpIfEligible(ctx context.Context, id string, now, cutoff time.Time) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE servers
		 SET last_bumped_at = ?
		 WHERE id = ?
		   AND (last_bumped_at IS NULL OR last_bumped_at <= ?)`,
		toMillis(now),
		id,
		toMillis(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: bumping server %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*model.Server, error) {
	var (
		s         model.Server
		guildID   sql.NullString
		createdAt int64
		bumpedAt  sql.NullInt64
	)
	if err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.BannerURL,
		&s.InviteURL,
		&s.MemberCount,
		&s.OwnerID,
		&guildID,
		&createdAt,
		&bumpedAt,
	); err != nil {
		return nil, err
	}
	s.DiscordGuildID = guildID.String
	s.CreatedAt = fromMillis(createdAt)
	s.LastBumpedAt = timeFromNull(bumpedAt)
	return &s, nil
}

func insertTags(ctx context.Context, tx *sql.Tx, server *model.Server) error {
	for i := range server.Tags {
		tag := &server.Tags[i]
		tag.ID = xid.New().String()
		tag.ServerID = server.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO server_tags (id, server_id, value, position) VALUES (?, ?, ?, ?)`,
			tag.ID, tag.ServerID, tag.Value, i,
		); err != nil {
			return fmt.Errorf("inserting tag %q: %w", tag.Value, err)
		}
	}
	return nil
}

// loadTags returns tags grouped by server ID, in insertion order.
func loadTags(ctx context.Context, q querier, where string, args ...any) (map[string][]model.Tag, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, server_id, value FROM server_tags `+where+` ORDER BY server_id, position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[string][]model.Tag)
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.ServerID, &t.Value); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags[t.ServerID] = append(tags[t.ServerID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}

	return tags, nil
}
