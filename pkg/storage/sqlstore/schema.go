package sqlstore

import (
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	messagesTable   = "messages"
	originTable     = "origin_events"
	narrativesTable = "narrative_events"
	timelineTable   = "timeline_entries"
)

var (
	// messagesColumns holds the raw conversation, user and assistant turns.
	messagesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "profile_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString, Nullable: true},
		{Name: "role", Type: field.TypeString},
		{Name: "text", Type: field.TypeString, Size: 2147483647},
		{Name: "attachment_ids", Type: field.TypeJSON, Nullable: true},
		{Name: "client_message_id", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	messagesSchema = &schema.Table{
		Name:       messagesTable,
		Columns:    messagesColumns,
		PrimaryKey: []*schema.Column{messagesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "message_profile_id_created_at",
				Unique:  false,
				Columns: []*schema.Column{messagesColumns[1], messagesColumns[7]},
			},
		},
	}

	// originColumns holds the append-only Origin Log. raw_payload is never
	// updated; processed and processed_at are the only mutable columns.
	originColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "profile_id", Type: field.TypeString},
		{Name: "source_type", Type: field.TypeString},
		{Name: "external_id", Type: field.TypeString, Nullable: true},
		{Name: "event_time", Type: field.TypeTime},
		// json rather than jsonb keeps the payload byte-for-byte on PostgreSQL.
		{Name: "raw_payload", Type: field.TypeJSON, SchemaType: map[string]string{dialect.Postgres: "json"}},
		{Name: "attachment_ids", Type: field.TypeJSON, Nullable: true},
		{Name: "processed", Type: field.TypeBool, Default: false},
		{Name: "processed_at", Type: field.TypeTime, Nullable: true},
		{Name: "notes", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
	}
	originSchema = &schema.Table{
		Name:       originTable,
		Columns:    originColumns,
		PrimaryKey: []*schema.Column{originColumns[0]},
		Indexes: []*schema.Index{
			{
				// NULL external ids never collide, so uniqueness only
				// applies when a source id is present.
				Name:    "originevent_source_type_external_id",
				Unique:  true,
				Columns: []*schema.Column{originColumns[2], originColumns[3]},
			},
			{
				Name:    "originevent_processed_created_at",
				Unique:  false,
				Columns: []*schema.Column{originColumns[7], originColumns[10]},
			},
		},
	}

	narrativesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "profile_id", Type: field.TypeString},
		{Name: "origin_event_id", Type: field.TypeString, Unique: true},
		{Name: "type", Type: field.TypeString},
		{Name: "event_time", Type: field.TypeTime},
		{Name: "title", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, Size: 2147483647},
		{Name: "detail", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	narrativesSchema = &schema.Table{
		Name:       narrativesTable,
		Columns:    narrativesColumns,
		PrimaryKey: []*schema.Column{narrativesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "narrative_events_origin_events_narrative",
				Columns:    []*schema.Column{narrativesColumns[2]},
				RefColumns: []*schema.Column{originColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
	}

	timelineColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "profile_id", Type: field.TypeString},
		{Name: "origin_event_id", Type: field.TypeString},
		{Name: "narrative_event_id", Type: field.TypeString},
		{Name: "type", Type: field.TypeString},
		{Name: "category", Type: field.TypeString},
		{Name: "record_time", Type: field.TypeTime},
		{Name: "title", Type: field.TypeString},
		{Name: "summary", Type: field.TypeString, Size: 2147483647},
		{Name: "tags", Type: field.TypeJSON, Nullable: true},
		{Name: "location", Type: field.TypeString, Nullable: true},
		{Name: "detail", Type: field.TypeJSON, Nullable: true},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "created_at", Type: field.TypeTime},
	}
	timelineSchema = &schema.Table{
		Name:       timelineTable,
		Columns:    timelineColumns,
		PrimaryKey: []*schema.Column{timelineColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "timeline_entries_origin_events_entries",
				Columns:    []*schema.Column{timelineColumns[2]},
				RefColumns: []*schema.Column{originColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "timeline_entries_narrative_events_entries",
				Columns:    []*schema.Column{timelineColumns[3]},
				RefColumns: []*schema.Column{narrativesColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "timelineentry_profile_id_record_time",
				Unique:  false,
				Columns: []*schema.Column{timelineColumns[1], timelineColumns[6]},
			},
			{
				Name:    "timelineentry_origin_event_id",
				Unique:  false,
				Columns: []*schema.Column{timelineColumns[2]},
			},
		},
	}

	// tables lists every table in migration order.
	tables = []*schema.Table{
		messagesSchema,
		originSchema,
		narrativesSchema,
		timelineSchema,
	}
)

func init() {
	narrativesSchema.ForeignKeys[0].RefTable = originSchema
	timelineSchema.ForeignKeys[0].RefTable = originSchema
	timelineSchema.ForeignKeys[1].RefTable = narrativesSchema
}
