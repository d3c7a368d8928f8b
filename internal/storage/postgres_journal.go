package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-booking/internal/models"
)

const schema = `CREATE TABLE IF NOT EXISTS tracked_orders (
	id BIGINT PRIMARY KEY,
	status TEXT NOT NULL,
	pickup_location TEXT NOT NULL DEFAULT '',
	drop_location TEXT NOT NULL DEFAULT '',
	distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
	price DOUBLE PRECISION NOT NULL DEFAULT 0,
	driver_id BIGINT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

type PostgresJournal struct {
	db *sql.DB
}

func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresJournal{db: db}, nil
}

func (p *PostgresJournal) SaveOrder(ctx context.Context, o models.Order) error {
	var driverID sql.NullInt64
	if o.Driver != nil && o.Driver.ID != 0 {
		driverID = sql.NullInt64{Int64: o.Driver.ID, Valid: true}
	}
	now := time.Now()
	_, err := p.db.ExecContext(ctx, `INSERT INTO tracked_orders(id, status, pickup_location, drop_location, distance_km, price, driver_id, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$8)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, driver_id=COALESCE(EXCLUDED.driver_id, tracked_orders.driver_id), updated_at=EXCLUDED.updated_at`,
		o.ID, string(o.Status), o.PickupLocation, o.DropLocation, o.Distance, o.Price, driverID, now)
	return err
}

func (p *PostgresJournal) UpdateStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	_, err := p.db.ExecContext(ctx, `UPDATE tracked_orders SET status=$1, updated_at=$2 WHERE id=$3`, string(status), time.Now(), id)
	return err
}

func (p *PostgresJournal) Close() error {
	return p.db.Close()
}
