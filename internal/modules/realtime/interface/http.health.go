package transport

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storeWs/internal/modules/realtime/infrastructure"
)

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Topics   int    `json:"topics"`
}

func NewHealthHandler(b *infrastructure.Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := b.Stats(c.Request().Context())
		if err != nil {
			info := errorMapper.Map(err)
			return c.JSON(info.Status, healthResponse{Status: "unavailable"})
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", Sessions: stats.Sessions, Topics: stats.Topics})
	}
}
