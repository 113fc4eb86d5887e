package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waterdesk/outbox"
)

// fakeAPI mimics the back-office session and order endpoints.
func fakeAPI(t *testing.T, orders chan<- *http.Request) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Username != "kasir" || body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"Invalid credentials"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
		_, _ = io.WriteString(w, `{"ok":true,"user":{"id":3,"username":"kasir","role":"user"}}`)
	})
	mux.HandleFunc("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"unauthenticated"}`)
			return
		}
		_, _ = io.WriteString(w, `{"user":{"id":3,"username":"kasir","role":"user"}}`)
	})
	mux.HandleFunc("/api/logout", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "", Path: "/", MaxAge: -1})
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		if orders != nil {
			orders <- r.Clone(context.Background())
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if q, ok := body["quantity"].(float64); ok && q <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid quantity"}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":1}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New("")
	require.ErrorIs(t, err, ErrBaseURLRequired)

	_, err = New("ftp://example.com")
	require.ErrorIs(t, err, ErrInvalidBaseURL)

	_, err = New("/relative")
	require.ErrorIs(t, err, ErrInvalidBaseURL)

	c, err := New("https://shop.example.com/")
	require.NoError(t, err)
	require.Equal(t, "https://shop.example.com", c.base.String())
}

func TestSendPostsOrderWithKey(t *testing.T) {
	orders := make(chan *http.Request, 1)
	srv := fakeAPI(t, orders)

	c, err := New(srv.URL)
	require.NoError(t, err)

	err = c.Send(context.Background(), outbox.Entry{
		ID:      7,
		Key:     "018f-key",
		Payload: json.RawMessage(`{"product_id":1,"quantity":2}`),
	})
	require.NoError(t, err)

	req := <-orders
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "018f-key", req.Header.Get(IdempotencyKeyHeader))
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestSendRejection(t *testing.T) {
	srv := fakeAPI(t, nil)

	c, err := New(srv.URL)
	require.NoError(t, err)

	err = c.Send(context.Background(), outbox.Entry{Payload: json.RawMessage(`{"product_id":1,"quantity":0}`)})
	require.True(t, outbox.IsRejection(err))

	var rejected *outbox.RejectionError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, http.StatusBadRequest, rejected.StatusCode)
	require.Equal(t, "invalid quantity", rejected.Message)
}

func TestSendRejectionBodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, strings.Repeat("x", 10*maxErrorBody))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	err = c.Send(context.Background(), outbox.Entry{Payload: json.RawMessage(`{}`)})
	var rejected *outbox.RejectionError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, http.StatusInternalServerError, rejected.StatusCode)
	require.Len(t, rejected.Message, maxErrorBody)
}

func TestSendTransportFailure(t *testing.T) {
	srv := fakeAPI(t, nil)
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)

	err = c.Send(context.Background(), outbox.Entry{Payload: json.RawMessage(`{}`)})
	require.Error(t, err)
	require.True(t, outbox.IsTransport(err))
	require.Error(t, c.Ping(context.Background()))
}

func TestSendHonoursContextTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = c.Send(ctx, outbox.Entry{Payload: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, outbox.IsTransport(err))
}

func TestSessionLifecycle(t *testing.T) {
	srv := fakeAPI(t, nil)
	ctx := context.Background()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.WhoAmI(ctx)
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.NoError(t, c.Ping(ctx), "a 401 still means the server is reachable")

	_, err = c.Login(ctx, "kasir", "wrong", "")
	var rejected *outbox.RejectionError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, http.StatusUnauthorized, rejected.StatusCode)
	require.Equal(t, "Invalid credentials", rejected.Message)

	user, err := c.Login(ctx, "kasir", "secret", "user")
	require.NoError(t, err)
	require.Equal(t, User{ID: 3, Username: "kasir", Role: "user"}, user)

	user, err = c.WhoAmI(ctx)
	require.NoError(t, err)
	require.Equal(t, "kasir", user.Username)

	require.NoError(t, c.Logout(ctx))
	_, err = c.WhoAmI(ctx)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestManagerSubmitOverRemote(t *testing.T) {
	orders := make(chan *http.Request, 4)
	srv := fakeAPI(t, orders)
	ctx := context.Background()

	c, err := New(srv.URL)
	require.NoError(t, err)

	store := outbox.NewMemoryStore()
	m := outbox.NewManager(store, c)

	res, err := m.Submit(ctx, json.RawMessage(`{"product_id":1,"quantity":1}`))
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, res.Key, (<-orders).Header.Get(IdempotencyKeyHeader))

	_, err = m.Submit(ctx, json.RawMessage(`{"product_id":1,"quantity":0}`))
	require.True(t, outbox.IsRejection(err))
	<-orders

	count, err := m.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count, "rejected submissions are not queued")
}
