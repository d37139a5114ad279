package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/mediaportal/internal/media"
)

type fakeDB struct {
	execArgs [][]any
	execTag  pgconn.CommandTag
	execErr  error

	queryArgs [][]any
	row       []any
	rowErr    error
	rows      [][]any
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execArgs = append(f.execArgs, args)
	return f.execTag, f.execErr
}

func (f *fakeDB) Query(_ context.Context, _ string, args ...interface{}) (pgx.Rows, error) {
	f.queryArgs = append(f.queryArgs, args)
	return &fakeRows{rows: f.rows, pos: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...interface{}) pgx.Row {
	f.queryArgs = append(f.queryArgs, args)
	return fakeRow{values: f.row, err: f.rowErr}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	pgx.Rows
	rows [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.rows[r.pos]) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(values[i]))
	}
	return nil
}

func assetRow(collection, row, status string, created time.Time) []any {
	return []any{
		collection, row, collection + ".mp4", "H264 Broadband 720p", "HTTPS & SAS",
		"Windows Azure Media Encoder", pgtype.Timestamptz{Time: created, Valid: true},
		int64(1500), pgtype.Timestamptz{}, status, int64(2048),
		"https://blob.test/a/clip.mp4", "https://blob.test/t/thumb.jpg",
	}
}

func TestAssetStore_Create(t *testing.T) {
	fdb := &fakeDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	s := NewAssetStore(fdb)
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	err := s.Create(context.Background(), &media.Record{
		Collection:     "keynote",
		Row:            "r1",
		CreatedAt:      created,
		ProcessingTime: 1500 * time.Millisecond,
		Status:         media.StatusCreated,
	})
	require.NoError(t, err)
	require.Len(t, fdb.execArgs, 1)

	args := fdb.execArgs[0]
	require.Equal(t, "keynote", args[0])
	require.Equal(t, "r1", args[1])
	require.Equal(t, pgtype.Timestamptz{Time: created, Valid: true}, args[6])
	require.Equal(t, int64(1500), args[7])
	require.Equal(t, pgtype.Timestamptz{}, args[8])
}

func TestAssetStore_CreateDuplicate(t *testing.T) {
	fdb := &fakeDB{execErr: &pgconn.PgError{Code: "23505"}}
	s := NewAssetStore(fdb)

	err := s.Create(context.Background(), &media.Record{Collection: "keynote", Row: "r1", CreatedAt: time.Now()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
}

func TestAssetStore_Get(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	fdb := &fakeDB{row: assetRow("keynote", "r1", "Processing", created)}
	s := NewAssetStore(fdb)

	rec, err := s.Get(context.Background(), "keynote", "r1")
	require.NoError(t, err)
	require.Equal(t, "keynote", rec.Collection)
	require.Equal(t, "r1", rec.Row)
	require.Equal(t, created, rec.CreatedAt)
	require.True(t, rec.ExpiresAt.IsZero())
	require.Equal(t, 1500*time.Millisecond, rec.ProcessingTime)
	require.EqualValues(t, 2048, rec.SizeBytes)
	require.Equal(t, []any{"keynote", "r1"}, fdb.queryArgs[0])
}

func TestAssetStore_GetNotFound(t *testing.T) {
	s := NewAssetStore(&fakeDB{rowErr: pgx.ErrNoRows})

	_, err := s.Get(context.Background(), "keynote", "missing")
	require.ErrorIs(t, err, media.ErrRecordNotFound)
}

func TestAssetStore_UpdateMissing(t *testing.T) {
	s := NewAssetStore(&fakeDB{execTag: pgconn.NewCommandTag("UPDATE 0")})

	err := s.Update(context.Background(), &media.Record{Collection: "keynote", Row: "missing"})
	require.ErrorIs(t, err, media.ErrRecordNotFound)
}

func TestAssetStore_Delete(t *testing.T) {
	s := NewAssetStore(&fakeDB{execTag: pgconn.NewCommandTag("DELETE 1")})
	deleted, err := s.Delete(context.Background(), "keynote", "r1")
	require.NoError(t, err)
	require.True(t, deleted)

	s = NewAssetStore(&fakeDB{execTag: pgconn.NewCommandTag("DELETE 0")})
	deleted, err = s.Delete(context.Background(), "keynote", "r1")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestAssetStore_List(t *testing.T) {
	now := time.Now().UTC()
	fdb := &fakeDB{
		row: []any{int64(7)},
		rows: [][]any{
			assetRow("outro", "r2", media.StatusFinished, now),
			assetRow("keynote", "r1", "Queued", now.Add(-time.Minute)),
		},
	}
	s := NewAssetStore(fdb)

	recs, total, err := s.List(context.Background(), media.ListParams{Search: "o", Offset: -3, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 7, total)
	require.Len(t, recs, 2)
	require.Equal(t, "outro", recs[0].Collection)
	require.Equal(t, []any{"o", int32(0), int32(2)}, fdb.queryArgs[1])
}

func TestAssetStore_ListInProgressDefaultLimit(t *testing.T) {
	fdb := &fakeDB{}
	s := NewAssetStore(fdb)

	recs, err := s.ListInProgress(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, recs)
	require.Equal(t, []any{int32(media.DefaultInProgressLimit)}, fdb.queryArgs[0])
}
