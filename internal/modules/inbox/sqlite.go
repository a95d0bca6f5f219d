package inbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"storeWs/internal/modules/realtime/domain"
)

type notificationRow struct {
	bun.BaseModel `bun:"table:notification_records"`

	Seq       int    `bun:"seq,pk"`
	ID        string `bun:"id,notnull"`
	Type      string `bun:"type,notnull"`
	Message   string `bun:"message,notnull"`
	Timestamp int64  `bun:"timestamp,notnull"`
	URL       string `bun:"url"`
}

// SQLitePersister keeps the feed in a SQLite table; seq preserves stored order.
type SQLitePersister struct {
	db *bun.DB
}

// OpenSQLite opens dsn and creates the notification table if needed.
func OpenSQLite(ctx context.Context, dsn string) (*SQLitePersister, error) {
	sqldb, err := sql.Open(sqliteshim.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// every pooled connection to a plain :memory: dsn would see its own empty database
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.NewCreateTable().Model((*notificationRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create notification table: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

func (p *SQLitePersister) Load(ctx context.Context) ([]domain.Record, error) {
	var rows []notificationRow
	if err := p.db.NewSelect().Model(&rows).Order("seq ASC").Scan(ctx); err != nil {
		return nil, err
	}
	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.Record{
			ID:        row.ID,
			Type:      row.Type,
			Message:   row.Message,
			Timestamp: row.Timestamp,
			URL:       row.URL,
		})
	}
	return records, nil
}

// Save replaces the table contents in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, records []domain.Record) error {
	rows := make([]notificationRow, 0, len(records))
	for i, rec := range records {
		rows = append(rows, notificationRow{
			Seq:       i + 1,
			ID:        rec.ID,
			Type:      rec.Type,
			Message:   rec.Message,
			Timestamp: rec.Timestamp,
			URL:       rec.URL,
		})
	}
	return p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*notificationRow)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
