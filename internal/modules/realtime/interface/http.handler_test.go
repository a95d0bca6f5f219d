package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeWs/internal/modules/inbox"
	"storeWs/internal/modules/realtime/application/usecase"
	"storeWs/internal/modules/realtime/domain"
	"storeWs/internal/modules/realtime/infrastructure"
	"storeWs/internal/modules/receiver"
	"storeWs/internal/platform/retry"
	"storeWs/internal/shared/auth"
)

type testServer struct {
	broker *infrastructure.Broker
	echo   *echo.Echo
	http   *httptest.Server
	stop   context.CancelFunc
}

func newTestServer(t *testing.T, validator auth.TokenValidator) *testServer {
	t.Helper()
	b := infrastructure.NewBroker(infrastructure.NewTopicRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()

	e := NewServer(Routes{
		Broker:    b,
		PublishUC: usecase.NewPublishPriceUseCase(b),
		Validator: validator,
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	t.Cleanup(cancel)
	return &testServer{broker: b, echo: e, http: srv, stop: cancel}
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
}

func (s *testServer) subscribers(t *testing.T, topic string) []string {
	t.Helper()
	subs, err := s.broker.Subscribers(context.Background(), topic)
	require.NoError(t, err)
	return subs
}

func (s *testServer) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestWebsocketPublishRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)

	subscribed, _, err := websocket.DefaultDialer.Dial(srv.wsURL(), nil)
	require.NoError(t, err)
	defer subscribed.Close()
	idle, _, err := websocket.DefaultDialer.Dial(srv.wsURL(), nil)
	require.NoError(t, err)
	defer idle.Close()

	require.NoError(t, subscribed.WriteJSON(domain.SubscribeRequest("prices")))
	require.Eventually(t, func() bool { return len(srv.subscribers(t, "prices")) == 1 }, time.Second, 5*time.Millisecond)

	body := `{"channel":"prices","type":"price_update","data":{"productId":"p1","newPrice":99.99,"oldPrice":109.99,"change":-10.00}}`
	rec := srv.do(http.MethodPost, "/api/publish", body, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp PublishResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, PublishResponse{Channel: "prices", Type: "price_update", Delivered: 1}, resp)

	require.NoError(t, subscribed.SetReadDeadline(time.Now().Add(time.Second)))
	_, raw, err := subscribed.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "price_update", frame.Type)
	assert.JSONEq(t, `{"productId":"p1","newPrice":99.99,"oldPrice":109.99,"change":-10}`, string(frame.Data))
	assert.Positive(t, frame.Timestamp)

	require.NoError(t, idle.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = idle.ReadMessage()
	assert.Error(t, err)
}

type trackingDialer struct {
	receiver.WebsocketDialer
	mu    sync.Mutex
	conns []receiver.Conn
}

func (d *trackingDialer) Dial(ctx context.Context, url string) (receiver.Conn, error) {
	conn, err := d.WebsocketDialer.Dial(ctx, url)
	if err == nil {
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()
	}
	return conn, err
}

func (d *trackingDialer) conn(i int) receiver.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func TestReceiverReconnectsWithoutDuplicateSubscriptions(t *testing.T) {
	srv := newTestServer(t, nil)
	dialer := &trackingDialer{}
	store := inbox.NewStore(nil, 0)
	r := receiver.New(receiver.Options{
		URL:     srv.wsURL(),
		Dialer:  dialer,
		Backoff: retry.FixedBackoff{Delay: 10 * time.Millisecond},
		Store:   store,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return len(srv.subscribers(t, "prices")) == 1 }, 2*time.Second, 5*time.Millisecond)
	firstID := srv.subscribers(t, "prices")[0]

	require.NoError(t, dialer.conn(0).Close())
	require.Eventually(t, func() bool {
		subs := srv.subscribers(t, "prices")
		return len(subs) == 1 && subs[0] != firstID && r.Connected()
	}, 2*time.Second, 5*time.Millisecond)

	_, err := srv.broker.Publish(context.Background(), "prices", domain.PriceAlert{ProductID: "p1", NewPrice: 42})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "/products/p1", store.ReadAll()[0].URL)
}

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "pricing-engine",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthenticationWhenConfigured(t *testing.T) {
	validator, err := auth.NewJWTValidator("s3cret", "")
	require.NoError(t, err)
	srv := newTestServer(t, validator)
	body := `{"type":"price_alert","data":{"productId":"p1","newPrice":5}}`

	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/ws", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodPost, "/api/publish", body, nil).Code)

	bad := http.Header{"Authorization": []string{"Bearer " + signedToken(t, "other")}}
	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodPost, "/api/publish", body, bad).Code)

	good := http.Header{"Authorization": []string{"Bearer " + signedToken(t, "s3cret")}}
	rec := srv.do(http.MethodPost, "/api/publish", body, good)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	conn, _, err := websocket.DefaultDialer.Dial(srv.wsURL()+"?token="+signedToken(t, "s3cret"), nil)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestPublishRejectsInvalidPayloads(t *testing.T) {
	srv := newTestServer(t, nil)

	cases := map[string]int{
		`not json`:                                                       http.StatusBadRequest,
		`{"type":"coupon","data":{}}`:                                    http.StatusBadRequest,
		`{"type":"price_alert","data":{"newPrice":5}}`:                   http.StatusBadRequest,
		`{"type":"price_update","data":{"productId":"p","newPrice":-1}}`: http.StatusBadRequest,
	}
	for body, status := range cases {
		rec := srv.do(http.MethodPost, "/api/publish", body, nil)
		assert.Equal(t, status, rec.Code, body)
	}
}

func TestPublishDecodeErrorsUseFixedMessages(t *testing.T) {
	srv := newTestServer(t, nil)

	cases := map[string]string{
		`not json`:                    "malformed publication",
		`{"type":"coupon","data":{}}`: "unknown event type",
	}
	for body, message := range cases {
		rec := srv.do(http.MethodPost, "/api/publish", body, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"message":"`+message+`"}`, rec.Body.String(), body)
	}
}

func TestPublishAfterBrokerStopped(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.stop()

	require.Eventually(t, func() bool {
		rec := srv.do(http.MethodPost, "/api/publish", `{"type":"price_alert","data":{"productId":"p","newPrice":1}}`, nil)
		return rec.Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, http.StatusServiceUnavailable, srv.do(http.MethodGet, "/healthz", "", nil).Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0,"topics":0}`, rec.Body.String())
}
