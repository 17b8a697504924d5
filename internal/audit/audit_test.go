package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutcome(t *testing.T) {
	before := time.Now().UTC()
	o := NewOutcome("openweather", "alice", "/weather", 200, 1500*time.Millisecond, false)

	assert.NotEqual(t, uuid.Nil, o.ID)
	assert.Equal(t, int64(1500), o.LatencyMS)
	assert.False(t, o.Timestamp.Before(before))

	other := NewOutcome("openweather", "alice", "/weather", 200, 0, true)
	assert.NotEqual(t, o.ID, other.ID)
}

func TestMemorySinkConcurrent(t *testing.T) {
	sink := NewMemorySink()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Record(context.Background(), NewOutcome("github", "", "/users/x", 200, 0, false))
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, sink.Len())
	assert.Len(t, sink.Outcomes(), 20)
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	var fn int
	sink := Multi(a, nil, b, SinkFunc(func(context.Context, Outcome) { fn++ }))

	sink.Record(context.Background(), NewOutcome("newsapi", "", "/v2/top-headlines", 200, 0, true))

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1, fn)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Record(context.Background(), NewOutcome("openweather", "bob", "/weather", 408, 15*time.Second, false))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "openweather", line["service"])
	assert.Equal(t, float64(408), line["status"])
	assert.Equal(t, float64(15000), line["latency_ms"])
	assert.Equal(t, false, line["cache_hit"])
}

// fakeDB captures statements issued by PostgresSink.
type fakeDB struct {
	execs [][]any
	sqls  []string
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	f.sqls = append(f.sqls, sql)
	f.execs = append(f.execs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, f.err
}

func TestPostgresSinkRecord(t *testing.T) {
	db := &fakeDB{}
	sink := NewPostgresSink(db, zerolog.Nop())

	require.NoError(t, sink.Migrate(context.Background()))
	o := NewOutcome("coingecko", "", "/ping", 200, 20*time.Millisecond, false)
	sink.Record(context.Background(), o)

	require.Len(t, db.execs, 2)
	assert.Contains(t, db.sqls[0], "CREATE TABLE IF NOT EXISTS api_request_logs")
	args := db.execs[1]
	assert.Equal(t, o.ID, args[0])
	assert.Equal(t, "coingecko", args[1])
	assert.Nil(t, args[2], "empty caller is stored as NULL")
	assert.Equal(t, 200, args[4])
	assert.Equal(t, int64(20), args[5])
}

func TestPostgresSinkSwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("connection lost")
	sink := NewPostgresSink(&fakeDB{err: boom}, zerolog.New(&buf))

	assert.NotPanics(t, func() {
		sink.Record(context.Background(), NewOutcome("github", "", "/users/x", 200, 0, false))
	})
	assert.True(t, strings.Contains(buf.String(), "write audit record"))

	_, err := sink.Recent(context.Background(), "github", 10)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, sink.Migrate(context.Background()), boom)
}

// Runs only when TEST_DATABASE_URL points at a disposable Postgres.
func TestPostgresSinkIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	sink := NewPostgresSink(pool, zerolog.Nop())
	require.NoError(t, sink.Migrate(ctx))
	_, _ = pool.Exec(ctx, `DELETE FROM api_request_logs WHERE service = 'it-audit'`)

	sink.Record(ctx, NewOutcome("it-audit", "carol", "/a", 200, time.Millisecond, false))
	later := NewOutcome("it-audit", "", "/b", 500, time.Millisecond, false)
	later.Timestamp = later.Timestamp.Add(time.Second)
	sink.Record(ctx, later)

	got, err := sink.Recent(ctx, "it-audit", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/b", got[0].Endpoint)
	assert.Equal(t, "", got[0].Caller)
	assert.Equal(t, "carol", got[1].Caller)
}
