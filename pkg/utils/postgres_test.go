package utils

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"sync"
	"testing"
)

// recordingDriver is a minimal database/sql driver that records transaction
// lifecycle events, enough to exercise WithTx without a real database.
type recordingDriver struct{ log *txLog }

type txLog struct {
	mu     sync.Mutex
	events []string
}

func (l *txLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *txLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func (l *txLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

func (d recordingDriver) Open(string) (driver.Conn, error) {
	return recordingConn{log: d.log}, nil
}

type recordingConn struct{ log *txLog }

func (recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (recordingConn) Close() error { return nil }

func (c recordingConn) Begin() (driver.Tx, error) {
	c.log.add("begin")
	return recordingTx{log: c.log}, nil
}

type recordingTx struct{ log *txLog }

func (t recordingTx) Commit() error   { t.log.add("commit"); return nil }
func (t recordingTx) Rollback() error { t.log.add("rollback"); return nil }

var withTxLog = &txLog{}

func init() {
	sql.Register("withtx-recorder", recordingDriver{log: withTxLog})
}

func openRecorderDB(t *testing.T) *sql.DB {
	t.Helper()
	withTxLog.reset()
	db, err := sql.Open("withtx-recorder", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := openRecorderDB(t)

	err := WithTx(context.Background(), db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if got := withTxLog.snapshot(); !reflect.DeepEqual(got, []string{"begin", "commit"}) {
		t.Fatalf("unexpected tx events: %v", got)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := openRecorderDB(t)
	boom := errors.New("boom")

	err := WithTx(context.Background(), db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the unit of work's error back, got %v", err)
	}
	if got := withTxLog.snapshot(); !reflect.DeepEqual(got, []string{"begin", "rollback"}) {
		t.Fatalf("unexpected tx events: %v", got)
	}
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := openRecorderDB(t)

	func() {
		defer func() {
			if p := recover(); p != "boom" {
				t.Fatalf("expected the panic to be re-raised, got %v", p)
			}
		}()
		_ = WithTx(context.Background(), db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		})
	}()

	if got := withTxLog.snapshot(); !reflect.DeepEqual(got, []string{"begin", "rollback"}) {
		t.Fatalf("unexpected tx events: %v", got)
	}
}
