package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// Handle is a checked-out connection with an open transaction. Exactly one of
// Finish or the Run wrapper closes it; double-finish is a no-op.
type Handle struct {
	pool      *Pool
	conn      Conn
	connID    string
	contextID string
	tx        Tx
	start     time.Time
	once      sync.Once
}

// Tx exposes the transaction bound to this handle.
func (h *Handle) Tx() Tx {
	return h.tx
}

// ConnID identifies the underlying pooled connection.
func (h *Handle) ConnID() string {
	return h.connID
}

// Finish completes the session: commit on nil err, rollback otherwise. The
// connection is always returned to the pool, even when commit or rollback
// fails.
func (h *Handle) Finish(err error) error {
	var result error
	h.once.Do(func() {
		failed := err != nil
		if failed {
			if rbErr := h.tx.Rollback(); rbErr != nil {
				logger.WithConnection(h.connID).Warnf("Rollback failed: %v", rbErr)
				result = fmt.Errorf("rollback failed: %w", rbErr)
			}
		} else {
			if cmErr := h.tx.Commit(); cmErr != nil {
				failed = true
				result = fmt.Errorf("commit failed: %w", cmErr)
			}
		}
		h.pool.release(h, failed)
	})
	return result
}

// Run acquires a connection, runs fn inside its transaction and finishes the
// handle. A panic in fn rolls the transaction back, releases the connection
// and re-panics.
func (p *Pool) Run(ctx context.Context, contextID string, priority models.Priority, fn func(Tx) error) error {
	handle, err := p.Acquire(ctx, contextID, priority)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			handle.Finish(fmt.Errorf("panic in session: %v", r))
			panic(r)
		}
	}()

	fnErr := fn(handle.Tx())
	if finishErr := handle.Finish(fnErr); fnErr == nil && finishErr != nil {
		return finishErr
	}
	return fnErr
}

// classifyConnError buckets a connection failure for the health monitor.
// Matching on error text is crude but the Postgres driver does not expose
// typed transport errors.
func classifyConnError(err error) models.SSLErrorType {
	if err == nil {
		return models.SSLErrorNone
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "certificate"), strings.Contains(msg, "x509"):
		return models.SSLErrorCertificate
	case strings.Contains(msg, "handshake"), strings.Contains(msg, "tls"), strings.Contains(msg, "ssl"):
		return models.SSLErrorHandshake
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return models.SSLErrorTimeout
	case strings.Contains(msg, "reset"), strings.Contains(msg, "broken pipe"), strings.Contains(msg, "eof"):
		return models.SSLErrorReset
	default:
		return models.SSLErrorOther
	}
}
