package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang-cart-sync/internal/handlers"
	"golang-cart-sync/internal/hub"
	"golang-cart-sync/internal/middleware"
	"golang-cart-sync/internal/models"
	"golang-cart-sync/internal/repositories"
	"golang-cart-sync/internal/services"
	"golang-cart-sync/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCarts struct {
	m     sync.Mutex
	carts map[string]*models.Cart
}

func (r *memCarts) GetByUserID(_ context.Context, userID string) (*models.Cart, error) {
	r.m.Lock()
	defer r.m.Unlock()
	cart, ok := r.carts[userID]
	if !ok {
		return nil, repositories.ErrCartNotFound
	}
	copied := *cart
	copied.Items = append(models.CartLines{}, cart.Items...)
	return &copied, nil
}

func (r *memCarts) Save(_ context.Context, cart *models.Cart) error {
	r.m.Lock()
	defer r.m.Unlock()
	copied := *cart
	copied.Items = append(models.CartLines{}, cart.Items...)
	r.carts[cart.UserID] = &copied
	return nil
}

func (r *memCarts) Delete(_ context.Context, userID string) error {
	r.m.Lock()
	defer r.m.Unlock()
	delete(r.carts, userID)
	return nil
}

func (r *memCarts) ListIdle(context.Context, time.Time, int) ([]string, error) {
	return nil, nil
}

type memCatalog map[string]*models.Service

func (c memCatalog) GetByID(_ context.Context, id string) (*models.Service, error) {
	if s, ok := c[id]; ok {
		return s, nil
	}
	return nil, repositories.ErrServiceNotFound
}

// startServer runs the websocket endpoint over in-memory storage and
// returns its URL with a token for u1.
func startServer(t *testing.T) (wsURL, token string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	carts := services.NewCartService(
		&memCarts{carts: make(map[string]*models.Cart)},
		memCatalog{"s1": {Name: "Haircut", Price: 500}},
		nil, nil, "",
	)
	jwt := auth.NewJWTManager("test-secret", 1)
	router := gin.New()
	handlers.NewSocketHandler(carts, hub.New(nil, ""), handlers.SocketConfig{
		AllowedOrigins: []string{"*"},
		SendQueue:      16,
		PingInterval:   time.Second,
	}).RegisterRoutes(router, middleware.NewAuthMiddleware(jwt))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token, err := jwt.GenerateToken("u1", auth.RoleUser)
	require.NoError(t, err)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", token
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := newRootCmd()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestCommands_AgainstServer(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("LOG_LEVEL", "panic")
	url, token := startServer(t)
	common := []string{"--server", url, "--token", token, "--timeout", "3s"}

	out, _, err := execute(t, append([]string{"add", "s1", "-q", "2"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "SERVICE")
	assert.Contains(t, out, "Haircut")
	assert.Contains(t, out, "1000.00")

	out, _, err = execute(t, append([]string{"update", "s1", "3"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "1500.00")

	out, errOut, err := execute(t, append([]string{"add", "missing"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server rejected the command: "+repositories.ErrServiceNotFound.Error())
	assert.Contains(t, errOut, "cart error: "+repositories.ErrServiceNotFound.Error())
	assert.Empty(t, out)

	out, _, err = execute(t, append([]string{"remove", "s1"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "cart is empty\n", out)
}

func TestCommands_NoUser(t *testing.T) {
	t.Setenv("LOG_LEVEL", "panic")

	_, _, err := execute(t, "add", "s1", "--server", "ws://127.0.0.1:1/ws", "--token", "")

	assert.EqualError(t, err, "no user: pass --user or a token")
}
