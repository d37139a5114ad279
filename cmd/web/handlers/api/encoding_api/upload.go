package encoding_api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediaportal/cmd/web/auth"
	"thirdcoast.systems/mediaportal/cmd/web/handlers/common"
	"thirdcoast.systems/mediaportal/cmd/web/internal/batches"
	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/pkg/utils/filename"
)

// Uploads stores uploaded source files.
type Uploads interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// KeyFunc names the object an upload of a batch is stored under.
type KeyFunc func(batchID, fileName string) string

// HandleUpload stores one source file and adds it to the session batch.
// Files already stored under the same key are not uploaded again.
func HandleUpload(sm *auth.SessionManager, reg *batches.Registry, uploads Uploads, keyFor KeyFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return common.ErrBadRequest("file is required")
		}
		name := path.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
		segment := filename.Sanitize(name, filename.DefaultMaxLen)
		if segment == "" {
			return common.ErrBadRequest("invalid file name")
		}

		b, id, err := common.RequireBatch(c, sm, reg)
		if err != nil {
			return err
		}
		if st := b.CurrentState(); st != media.StateInitialized && st != media.StateReady {
			return common.BatchError(media.ErrInvalidState)
		}

		ctx := c.Request().Context()
		key := keyFor(id, segment)

		exists, err := uploads.Exists(ctx, key)
		if err != nil {
			slog.Error("failed to check upload", "error", err, "key", key)
			return common.ErrInternal("failed to store upload")
		}
		if !exists {
			f, err := fh.Open()
			if err != nil {
				return common.ErrBadRequest("unreadable upload")
			}
			defer f.Close()

			contentType := fh.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			if err := uploads.Put(ctx, key, f, contentType); err != nil {
				slog.Error("failed to store upload", "error", err, "key", key)
				return common.ErrInternal("failed to store upload")
			}
		}

		src := media.SourceFile{Name: name, Size: fh.Size, Ref: key}
		if err := b.AddInputFile(src); err != nil {
			return common.BatchError(err)
		}

		slog.Info("source file uploaded", "batch_id", id, "file", name, "size", fh.Size, "reused", exists)
		return c.JSON(http.StatusOK, map[string]any{
			"name":  src.Name,
			"size":  src.Size,
			"files": len(b.InputFiles()),
		})
	}
}
