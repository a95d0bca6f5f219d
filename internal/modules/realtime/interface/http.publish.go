package transport

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"storeWs/internal/modules/realtime/application/usecase"
	"storeWs/internal/modules/realtime/domain"
	"storeWs/internal/modules/realtime/infrastructure"
	"storeWs/internal/shared/auth"
	"storeWs/internal/shared/httputil"
)

const maxPublishBody = 1 << 16

var errorMapper = httputil.NewErrorMapper().
	WithMapping(domain.ErrInvalidEvent, http.StatusBadRequest, "").
	WithMapping(domain.ErrMalformedMessage, http.StatusBadRequest, "malformed publication").
	WithMapping(domain.ErrUnknownEventType, http.StatusBadRequest, "unknown event type").
	WithMapping(auth.ErrMissingToken, http.StatusUnauthorized, "missing token").
	WithMapping(auth.ErrInvalidToken, http.StatusUnauthorized, "invalid token").
	WithMapping(infrastructure.ErrBrokerStopped, http.StatusServiceUnavailable, "broker unavailable")

// PublishResponse is returned by POST /api/publish.
type PublishResponse struct {
	Channel   string `json:"channel"`
	Type      string `json:"type"`
	Delivered int    `json:"delivered"`
}

// NewPublishHTTPHandler accepts {"channel","type","data"} and fans the event out to the
// channel's subscribers. Used by the pricing engine and back-office tools.
func NewPublishHTTPHandler(publishUC *usecase.PublishPriceUseCase) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxPublishBody))
		if err != nil {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		}
		pub, err := domain.DecodePublication(body)
		if err != nil {
			slog.Warn("publish http: invalid request body", slog.Any("error", err))
			info := errorMapper.Map(err)
			return echo.NewHTTPError(info.Status, info.Message)
		}

		delivered, err := publishUC.Execute(c.Request().Context(), pub)
		if err != nil {
			info := errorMapper.Map(err)
			slog.Warn("publish http: rejected", slog.String("channel", pub.Channel), slog.Int("status", info.Status), slog.Any("error", err))
			return echo.NewHTTPError(info.Status, info.Message)
		}

		return c.JSON(http.StatusAccepted, PublishResponse{
			Channel:   pub.Channel,
			Type:      string(pub.Event.Type()),
			Delivered: delivered,
		})
	}
}
