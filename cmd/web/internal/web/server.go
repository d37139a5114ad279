package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"thirdcoast.systems/mediaportal/cmd/web/auth"
	"thirdcoast.systems/mediaportal/cmd/web/handlers/api/asset_api"
	"thirdcoast.systems/mediaportal/cmd/web/handlers/api/encoding_api"
	"thirdcoast.systems/mediaportal/cmd/web/internal/batches"
	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/internal/presets"
)

const (
	uploadPath = "/api/uploads"
	streamPath = "/api/encoding/stream"
)

// Deps are the services the web server routes requests to.
type Deps struct {
	Sessions         *auth.SessionManager
	Batches          *batches.Registry
	Store            media.AssetRecordStore
	Uploads          encoding_api.Uploads
	UploadKey        encoding_api.KeyFunc
	Publisher        asset_api.Publisher
	Presets          *presets.Catalog
	DefaultProcessor string
	// UploadLimit is an echo body limit such as "2G".
	UploadLimit string
}

type Webserver struct {
	*echo.Echo
	deps Deps
}

func NewWebserver(deps Deps) (*Webserver, error) {
	if deps.Sessions == nil || deps.Batches == nil || deps.Store == nil || deps.Uploads == nil || deps.Presets == nil {
		return nil, errors.New("web: sessions, batches, store, uploads and presets are required")
	}
	if deps.UploadLimit == "" {
		deps.UploadLimit = "2G"
	}

	webserver := &Webserver{
		Echo: echo.New(),
		deps: deps,
	}

	if err := webserver.setupMiddleware(); err != nil {
		return nil, err
	}

	if err := webserver.registerRoutes(); err != nil {
		return nil, err
	}

	return webserver, nil
}

func (s *Webserver) setupMiddleware() error {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == uploadPath },
		Limit:   "2M",
	}))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == streamPath },
		Level:   5,
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == streamPath
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))

	return nil
}

func (s *Webserver) registerRoutes() error {
	d := s.deps

	apiGroup := s.Group("/api")

	apiGroup.POST("/uploads", encoding_api.HandleUpload(d.Sessions, d.Batches, d.Uploads, d.UploadKey), middleware.BodyLimit(d.UploadLimit))

	apiGroup.POST("/encoding", encoding_api.HandleConfigure(d.Sessions, d.Batches, d.DefaultProcessor))
	apiGroup.POST("/encoding/advance", encoding_api.HandleAdvance(d.Sessions, d.Batches))
	apiGroup.GET("/encoding/state", encoding_api.HandleState(d.Sessions, d.Batches))
	apiGroup.GET("/encoding/stream", encoding_api.HandleStream(d.Sessions, d.Batches))
	apiGroup.DELETE("/encoding", encoding_api.HandleDispose(d.Sessions, d.Batches))

	apiGroup.GET("/assets", asset_api.HandleList(d.Store))
	apiGroup.GET("/assets/in-progress", asset_api.HandleInProgress(d.Store))
	apiGroup.DELETE("/assets/:collection/:row", asset_api.HandleDelete(d.Store, d.Publisher))

	apiGroup.GET("/presets", asset_api.HandlePresets(d.Presets))

	// Health check
	s.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return nil
}
