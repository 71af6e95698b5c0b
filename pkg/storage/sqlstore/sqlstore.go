// Package sqlstore implements storage.Driver on top of database/sql using
// ent's dialect-aware query builders and schema migration. It is shared by the
// sqlite and postgres drivers, which only differ in how they open *sql.DB.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"

	"github.com/papercomputeco/nestlog/pkg/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides storage operations over a migrated *sql.DB.
// It is database-agnostic and is embedded by the specific drivers.
type Store struct {
	db      *sql.DB
	dialect string
}

// New migrates the schema and returns a Store. dialectName is one of
// entgo.io/ent/dialect.SQLite or dialect.Postgres.
func New(ctx context.Context, db *sql.DB, dialectName string) (*Store, error) {
	drv := entsql.OpenDB(dialectName, db)

	// ent's auto-migration handles append-only schema changes (new tables,
	// columns, indexes).
	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare migration: %w", err)
	}
	if err := migrate.Create(ctx, tables...); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, dialect: dialectName}, nil
}

// DB exposes the underlying handle for drivers that need it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

// AppendMessage stores an immutable RawMessage.
func (s *Store) AppendMessage(ctx context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}

	attachments, err := marshalJSON(msg.AttachmentIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal attachment ids: %w", err)
	}

	query, args := s.builder().Insert(messagesTable).
		Columns("id", "profile_id", "user_id", "role", "text", "attachment_ids", "client_message_id", "created_at").
		Values(msg.ID, msg.ProfileID, nullString(msg.UserID), string(msg.Role), msg.Text, attachments, nullString(msg.ClientMessageID), msg.CreatedAt).
		Query()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storage.Persistence("append message", err)
	}
	return nil
}

// ListMessages returns a page of history: page 0 is the newest page and the
// messages within a page are returned oldest first.
func (s *Store) ListMessages(ctx context.Context, profileID string, page, pageSize int) (*storage.MessagePage, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	b := s.builder()
	countQuery, countArgs := b.Select(entsql.Count("*")).
		From(b.Table(messagesTable)).
		Where(entsql.EQ("profile_id", profileID)).
		Query()

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, storage.Persistence("count messages", err)
	}

	query, args := b.Select("id", "profile_id", "user_id", "role", "text", "attachment_ids", "client_message_id", "created_at").
		From(b.Table(messagesTable)).
		Where(entsql.EQ("profile_id", profileID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(pageSize).
		Offset(page * pageSize).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Persistence("list messages", err)
	}
	defer rows.Close()

	messages := []*storage.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Persistence("list messages", err)
	}

	// Newest-first from the query; flip so the page reads chronologically.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &storage.MessagePage{
		Messages: messages,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  (page+1)*pageSize < total,
	}, nil
}

// CreateOrigin appends an origin event, relying on the unique
// (source_type, external_id) index to collapse retries into one row.
func (s *Store) CreateOrigin(ctx context.Context, origin *storage.OriginEvent) (*storage.OriginEvent, bool, error) {
	if origin == nil {
		return nil, false, errors.New("cannot store nil origin event")
	}

	attachments, err := marshalJSON(origin.AttachmentIDs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal attachment ids: %w", err)
	}
	payload := string(origin.RawPayload)
	if payload == "" {
		payload = "{}"
	}

	insert := s.builder().Insert(originTable).
		Columns("id", "profile_id", "source_type", "external_id", "event_time", "raw_payload", "attachment_ids", "processed", "processed_at", "notes", "created_at").
		Values(origin.ID, origin.ProfileID, origin.SourceType, origin.ExternalID, origin.EventTime, payload, attachments, false, nil, nullString(origin.Notes), origin.CreatedAt)
	if origin.ExternalID != nil {
		insert = insert.OnConflict(entsql.ConflictColumns("source_type", "external_id"), entsql.DoNothing())
	}
	query, args := insert.Query()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, storage.Persistence("create origin event", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, storage.Persistence("create origin event", err)
	}

	if affected == 0 && origin.ExternalID != nil {
		existing, err := s.GetOriginByExternalID(ctx, origin.SourceType, *origin.ExternalID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	stored, err := s.GetOrigin(ctx, origin.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// GetOrigin retrieves an origin event by id.
func (s *Store) GetOrigin(ctx context.Context, id string) (*storage.OriginEvent, error) {
	origin, err := s.getOriginBy(ctx, s.db, entsql.EQ("id", id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.NotFoundError{Kind: "origin event", ID: id}
	}
	return origin, err
}

// GetOriginByExternalID looks an origin event up by (source type, external id).
func (s *Store) GetOriginByExternalID(ctx context.Context, sourceType, externalID string) (*storage.OriginEvent, error) {
	origin, err := s.getOriginBy(ctx, s.db, entsql.And(
		entsql.EQ("source_type", sourceType),
		entsql.EQ("external_id", externalID),
	))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.NotFoundError{Kind: "origin event", ID: sourceType + ":" + externalID}
	}
	return origin, err
}

// ListUnprocessed returns origin events that still need projecting.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]*storage.OriginEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	b := s.builder()
	query, args := b.Select(originSelectColumns...).
		From(b.Table(originTable)).
		Where(entsql.EQ("processed", false)).
		OrderBy("created_at").
		Limit(limit).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Persistence("list unprocessed", err)
	}
	defer rows.Close()

	origins := []*storage.OriginEvent{}
	for rows.Next() {
		origin, err := scanOrigin(rows)
		if err != nil {
			return nil, err
		}
		origins = append(origins, origin)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Persistence("list unprocessed", err)
	}
	return origins, nil
}

// ReplaceProjections swaps an origin's projections and flips it to processed
// inside one transaction, so a failure leaves the previous state intact.
func (s *Store) ReplaceProjections(ctx context.Context, originID string, projection *storage.Projection, processedAt time.Time) (err error) {
	if projection == nil || projection.Narrative == nil {
		return errors.New("projection requires a narrative event")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Persistence("begin projection", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.getOriginBy(ctx, tx, entsql.EQ("id", originID)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.NotFoundError{Kind: "origin event", ID: originID}
		}
		return err
	}

	b := s.builder()
	for _, table := range []string{timelineTable, narrativesTable} {
		query, args := b.Delete(table).Where(entsql.EQ("origin_event_id", originID)).Query()
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return storage.Persistence("clear projections", err)
		}
	}

	if err = s.insertNarrative(ctx, tx, projection.Narrative); err != nil {
		return err
	}
	for _, entry := range projection.Entries {
		if err = s.insertEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	query, args := b.Update(originTable).
		Set("processed", true).
		Set("processed_at", processedAt).
		Where(entsql.EQ("id", originID)).
		Query()
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return storage.Persistence("mark processed", err)
	}

	if err = tx.Commit(); err != nil {
		return storage.Persistence("commit projection", err)
	}
	return nil
}

// GetProjection returns the narrative and timeline entries of an origin.
func (s *Store) GetProjection(ctx context.Context, originID string) (*storage.Projection, error) {
	b := s.builder()
	query, args := b.Select(narrativeSelectColumns...).
		From(b.Table(narrativesTable)).
		Where(entsql.EQ("origin_event_id", originID)).
		Query()

	narrative, err := scanNarrative(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFoundError{Kind: "projection", ID: originID}
		}
		return nil, storage.Persistence("get narrative", err)
	}

	entries, err := s.listEntries(ctx, entsql.EQ("origin_event_id", originID), 0, 0, entsql.Asc("record_time"), entsql.Asc("id"))
	if err != nil {
		return nil, err
	}

	return &storage.Projection{Narrative: narrative, Entries: entries}, nil
}

// ListTimeline returns a profile's timeline entries, newest first.
func (s *Store) ListTimeline(ctx context.Context, profileID string, limit, offset int) ([]*storage.TimelineEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listEntries(ctx, entsql.EQ("profile_id", profileID), limit, offset, entsql.Desc("record_time"), entsql.Desc("id"))
}

func (s *Store) listEntries(ctx context.Context, where *entsql.Predicate, limit, offset int, order ...string) ([]*storage.TimelineEntry, error) {
	b := s.builder()
	sel := b.Select(timelineSelectColumns...).
		From(b.Table(timelineTable)).
		Where(where).
		OrderBy(order...)
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	if offset > 0 {
		sel = sel.Offset(offset)
	}
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Persistence("list timeline", err)
	}
	defer rows.Close()

	entries := []*storage.TimelineEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Persistence("list timeline", err)
	}
	return entries, nil
}

func (s *Store) getOriginBy(ctx context.Context, q querier, where *entsql.Predicate) (*storage.OriginEvent, error) {
	b := s.builder()
	query, args := b.Select(originSelectColumns...).
		From(b.Table(originTable)).
		Where(where).
		Limit(1).
		Query()

	origin, err := scanOrigin(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFoundError{Kind: "origin event"}
		}
		return nil, err
	}
	return origin, nil
}

func (s *Store) insertNarrative(ctx context.Context, q querier, n *storage.NarrativeEvent) error {
	detail, err := marshalJSON(n.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal narrative detail: %w", err)
	}

	query, args := s.builder().Insert(narrativesTable).
		Columns("id", "profile_id", "origin_event_id", "type", "event_time", "title", "description", "detail", "created_at").
		Values(n.ID, n.ProfileID, n.OriginEventID, n.Type, n.EventTime, n.Title, n.Description, detail, n.CreatedAt).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return storage.Persistence("insert narrative", err)
	}
	return nil
}

func (s *Store) insertEntry(ctx context.Context, q querier, e *storage.TimelineEntry) error {
	tags, err := marshalJSON(e.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	detail, err := marshalJSON(e.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal entry detail: %w", err)
	}

	query, args := s.builder().Insert(timelineTable).
		Columns("id", "profile_id", "origin_event_id", "narrative_event_id", "type", "category", "record_time", "title", "summary", "tags", "location", "detail", "confidence", "created_at").
		Values(e.ID, e.ProfileID, e.OriginEventID, e.NarrativeEventID, e.Type, e.Category, e.RecordTime, e.Title, e.Summary, tags, nullString(e.Location), detail, e.Confidence, e.CreatedAt).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return storage.Persistence("insert timeline entry", err)
	}
	return nil
}
