package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := &Record{Collection: "clip", Row: "r1", Status: StatusCreated}
	require.NoError(t, s.Create(ctx, rec))
	require.Error(t, s.Create(ctx, rec))

	rec.Status = "Queued"
	got, err := s.Get(ctx, "clip", "r1")
	require.NoError(t, err)
	require.Equal(t, StatusCreated, got.Status, "store must not alias the caller's record")

	require.NoError(t, s.Update(ctx, rec))
	got, err = s.Get(ctx, "clip", "r1")
	require.NoError(t, err)
	require.Equal(t, "Queued", got.Status)

	_, err = s.Get(ctx, "clip", "missing")
	require.ErrorIs(t, err, ErrRecordNotFound)
	require.ErrorIs(t, s.Update(ctx, &Record{Collection: "clip", Row: "missing"}), ErrRecordNotFound)

	deleted, err := s.Delete(ctx, "clip", "r1")
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = s.Delete(ctx, "clip", "r1")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	titles := []string{"keynote", "panel", "keynote-recap", "outro"}
	for i, title := range titles {
		status := StatusFinished
		if i%2 == 0 {
			status = "Processing"
		}
		require.NoError(t, s.Create(ctx, &Record{
			Collection: title,
			Row:        NewRowKey(base.Add(time.Duration(i) * time.Minute)),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Encoding:   "H264 Broadband 720p",
			Status:     status,
		}))
	}

	all, total, err := s.List(ctx, ListParams{})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Equal(t, "outro", all[0].Collection)
	require.Equal(t, "keynote", all[3].Collection)

	page, total, err := s.List(ctx, ListParams{Search: "KEYNOTE", Offset: 1, Limit: 5})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, page, 1)
	require.Equal(t, "keynote", page[0].Collection)

	inProgress, err := s.ListInProgress(ctx, 1)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	require.Equal(t, "keynote-recap", inProgress[0].Collection)
}
