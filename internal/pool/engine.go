package pool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Tx is the transaction handed to callers through a Handle.
type Tx interface {
	Commit() error
	Rollback() error
}

// Conn is one physical database connection checked out of the engine.
type Conn interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Engine owns the underlying database handle. Rebuilding the engine is the
// most drastic automated action the pool takes.
type Engine interface {
	// Connect checks a physical connection out of the engine, blocking until
	// one is available or ctx expires.
	Connect(ctx context.Context) (Conn, error)
	// Ping is the reachability probe used before an engine swap.
	Ping(ctx context.Context) error
	Close() error
}

// EngineFactory builds an engine sized for the given pool bounds. The pool
// calls it on startup, on every rescale and on engine refresh.
type EngineFactory func(size, overflow int) (Engine, error)

// SQLEngine is the production engine over database/sql with the Postgres
// driver.
type SQLEngine struct {
	db          *sql.DB
	dsn         string
	pingTimeout time.Duration
}

// NewSQLEngineFactory returns a factory opening Postgres handles for dsn.
// warmHeadroom extra physical connections are allowed beyond size+overflow so
// parked warm connections never starve caller acquisitions. pingTimeout bounds
// reachability probes so a hung endpoint cannot stall an engine swap.
func NewSQLEngineFactory(dsn string, warmHeadroom int, maxIdleTime, pingTimeout time.Duration) EngineFactory {
	return func(size, overflow int) (Engine, error) {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database handle: %w", err)
		}
		db.SetMaxOpenConns(size + overflow + warmHeadroom)
		db.SetMaxIdleConns(size)
		if maxIdleTime > 0 {
			db.SetConnMaxIdleTime(maxIdleTime)
		}
		return &SQLEngine{db: db, dsn: dsn, pingTimeout: pingTimeout}, nil
	}
}

func (e *SQLEngine) Connect(ctx context.Context) (Conn, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

func (e *SQLEngine) Ping(ctx context.Context) error {
	if e.pingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.pingTimeout)
		defer cancel()
	}
	return e.db.PingContext(ctx)
}

func (e *SQLEngine) Close() error {
	return e.db.Close()
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Ping(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

func (c *sqlConn) Begin(ctx context.Context) (Tx, error) {
	return c.conn.BeginTx(ctx, nil)
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}
