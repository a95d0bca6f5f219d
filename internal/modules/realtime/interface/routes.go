package transport

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"storeWs/internal/modules/realtime/application/usecase"
	"storeWs/internal/modules/realtime/infrastructure"
	"storeWs/internal/shared/auth"
)

// Routes bundles what the HTTP surface needs.
type Routes struct {
	Broker    *infrastructure.Broker
	PublishUC *usecase.PublishPriceUseCase
	Validator auth.TokenValidator
	Websocket infrastructure.WebsocketOptions
}

// NewServer builds the echo instance with every route registered.
func NewServer(r Routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/ws", NewWebsocketHandler(r.Broker, r.Validator, r.Websocket))
	e.POST("/api/publish", NewPublishHTTPHandler(r.PublishUC), RequireToken(r.Validator))
	e.GET("/healthz", NewHealthHandler(r.Broker))
	return e
}
