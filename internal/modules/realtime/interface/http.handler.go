package transport

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"storeWs/internal/modules/realtime/infrastructure"
	"storeWs/internal/shared/auth"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewWebsocketHandler exposes /ws. When the validator is enabled the token is taken
// from the Authorization header or the token query parameter and must be valid.
func NewWebsocketHandler(b *infrastructure.Broker, validator auth.TokenValidator, opts infrastructure.WebsocketOptions) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		peerIP := c.RealIP()

		userID, err := authenticate(c.Request(), validator)
		if err != nil {
			info := errorMapper.Map(err)
			slog.Warn("ws handler auth failed", slog.String("ip", peerIP), slog.String("reqID", requestID), slog.Any("error", err))
			return echo.NewHTTPError(info.Status, info.Message)
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			slog.Error("ws handler upgrade failed", slog.String("ip", peerIP), slog.String("reqID", requestID), slog.Any("error", err))
			return err
		}
		slog.Info("ws handler upgrade success", slog.String("ip", peerIP), slog.String("userId", userID), slog.String("reqID", requestID))

		if err := infrastructure.ServeWebsocket(c.Request().Context(), b, conn, userID, opts); err != nil {
			slog.Warn("ws session ended with error", slog.String("userId", userID), slog.Any("error", err))
		}
		return nil
	}
}

// authenticate returns the token subject, or "" when authentication is disabled.
func authenticate(r *http.Request, validator auth.TokenValidator) (string, error) {
	if validator == nil || !validator.Enabled() {
		return "", nil
	}
	claims, err := validator.Validate(auth.ExtractToken(r, "token"))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// RequireToken rejects requests without a valid token when the validator is enabled.
func RequireToken(validator auth.TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := authenticate(c.Request(), validator); err != nil {
				info := errorMapper.Map(err)
				return echo.NewHTTPError(info.Status, info.Message)
			}
			return next(c)
		}
	}
}
