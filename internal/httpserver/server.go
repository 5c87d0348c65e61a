// Package httpserver assembles the echo router from the REST handlers and
// the voice WebSocket endpoint.
package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/api"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/voice"
)

func New(handlers *api.Handlers, voiceHandler *voice.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	handlers.Register(e)
	e.GET("/ws/audio", voiceHandler.ServeWS)

	return e
}
