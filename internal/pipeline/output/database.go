package output

import (
	"database/sql"
	"encoding/json"

	"github.com/nwws-bridge/nwws-bridge/db"
	"github.com/nwws-bridge/nwws-bridge/internal/event"
	"github.com/nwws-bridge/nwws-bridge/logger"
)

// DatabaseOutput persists every event into three tables: the primary
// event row, a content row (raw bytes plus optional processed
// payload), and one metadata row per custom annotation key. Duplicate
// event_id inserts are silently skipped — the duplicate filter
// upstream is the primary defence, this is defence in depth.
type DatabaseOutput struct {
	id     string
	driver db.Driver
	dsn    string
	handle *sql.DB
}

func NewDatabaseOutput(id string, driver db.Driver, dsn string) *DatabaseOutput {
	if id == "" {
		id = "database"
	}
	return &DatabaseOutput{id: id, driver: driver, dsn: dsn}
}

func (o *DatabaseOutput) ID() string { return o.id }

func (o *DatabaseOutput) Start() error {
	if o.handle != nil {
		return nil
	}
	handle, err := db.OpenWithMigrations(o.driver, o.dsn, nil)
	if err != nil {
		return err
	}
	o.handle = handle
	return nil
}

func (o *DatabaseOutput) Stop() error {
	if o.handle == nil {
		return nil
	}
	err := o.handle.Close()
	o.handle = nil
	return err
}

func (o *DatabaseOutput) Send(e event.Event) error {
	raw, processed := split(e)
	meta := e.Meta()

	tx, err := o.handle.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(o.insertEventQuery(),
		meta.EventID, e.Kind(), e.ContentType(),
		raw.AwipsID, raw.CCCC, raw.ProductID, raw.TTAAII, raw.Subject,
		raw.Issue, meta.TraceID,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(o.insertContentQuery(), meta.EventID, raw.NoaaportRaw, processed); err != nil {
		return err
	}

	for k, v := range meta.Custom {
		if _, err := tx.Exec(o.insertMetadataQuery(), meta.EventID, k, v); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func split(e event.Event) (event.RawIngestEvent, *string) {
	switch v := e.(type) {
	case event.TextProductEvent:
		payload, err := json.Marshal(v.Product)
		if err != nil {
			logger.Warnw("database output: failed to marshal processed payload", "event_id", v.Meta().EventID, "error", err)
			return v.RawIngestEvent, nil
		}
		s := string(payload)
		return v.RawIngestEvent, &s
	case event.XmlEvent:
		return v.RawIngestEvent, &v.Body
	case event.RawIngestEvent:
		return v, nil
	default:
		return event.RawIngestEvent{Metadata: e.Meta()}, nil
	}
}

func (o *DatabaseOutput) insertEventQuery() string {
	if o.driver == db.DriverPostgres {
		return `INSERT INTO events
			(event_id, event_variant, content_type, awips_id, cccc, product_id, ttaaii, subject, issue_time, trace_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (event_id) DO NOTHING`
	}
	return `INSERT OR IGNORE INTO events
		(event_id, event_variant, content_type, awips_id, cccc, product_id, ttaaii, subject, issue_time, trace_id)
		VALUES (?,?,?,?,?,?,?,?,?,?)`
}

func (o *DatabaseOutput) insertContentQuery() string {
	if o.driver == db.DriverPostgres {
		return `INSERT INTO event_content (event_id, noaaport_raw, processed_payload)
			VALUES ($1,$2,$3) ON CONFLICT (event_id) DO NOTHING`
	}
	return `INSERT OR IGNORE INTO event_content (event_id, noaaport_raw, processed_payload) VALUES (?,?,?)`
}

func (o *DatabaseOutput) insertMetadataQuery() string {
	if o.driver == db.DriverPostgres {
		return `INSERT INTO event_metadata (event_id, key, value) VALUES ($1,$2,$3)
			ON CONFLICT (event_id, key) DO NOTHING`
	}
	return `INSERT OR IGNORE INTO event_metadata (event_id, key, value) VALUES (?,?,?)`
}
