package httppool

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIsReused(t *testing.T) {
	pool := NewPool(time.Hour)
	defer pool.Stop()

	a := pool.Client("gateway")
	b := pool.Client("gateway")
	c := pool.Client("peers")

	assert.Same(t, a, b, "same name must return the same client")
	assert.NotSame(t, a, c, "different names get dedicated clients")
}

func TestRecycleKeepsClientUsable(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.WriteString(w, "ok") //nolint:errcheck
	}))
	defer srv.Close()

	pool := NewPool(time.Hour)
	defer pool.Stop()

	client := pool.Client("gateway")

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	pool.Recycle("gateway")

	// The held *http.Client must survive a transport swap.
	resp, err = client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 2, hits)
}

func TestRecycleUnknownClientIsNoop(t *testing.T) {
	pool := NewPool(time.Hour)
	defer pool.Stop()
	pool.Recycle("never-created")
}

func TestWaitHonorsContext(t *testing.T) {
	pool := NewPool(time.Hour)
	defer pool.Stop()

	// One token per minute: the second call must block until ctx expires.
	pool.SetHostLimit("slow.example", 1.0/60.0, 1)

	ctx := context.Background()
	require.NoError(t, pool.Wait(ctx, "https://slow.example/get"))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := pool.Wait(short, "https://slow.example/get")
	assert.Error(t, err)
}

func TestWaitDefaultLimiterAllowsBurst(t *testing.T) {
	pool := NewPool(time.Hour)
	defer pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Wait(ctx, "https://fast.example/registry"))
	}
}

func TestReadResponseRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"value":42}}`) //nolint:errcheck
	}))
	defer srv.Close()

	pool := NewPool(time.Hour)
	defer pool.Stop()

	resp, err := pool.Client("gateway").Get(srv.URL)
	require.NoError(t, err)

	buf, err := pool.Buffers().ReadResponse(resp)
	require.NoError(t, err)

	assert.Equal(t, `{"data":{"value":42}}`, string(buf.Bytes()))
	assert.Equal(t, 21, buf.Len())

	buf.Release()
	assert.Nil(t, buf.Bytes(), "released buffer must not expose bytes")
	buf.Release() // double release is safe
}

func TestReadResponseCapsSize(t *testing.T) {
	big := strings.Repeat("x", MaxResponseBytes+1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, big) //nolint:errcheck
	}))
	defer srv.Close()

	pool := NewPool(time.Hour)
	defer pool.Stop()

	resp, err := pool.Client("gateway").Get(srv.URL)
	require.NoError(t, err)

	_, err = pool.Buffers().ReadResponse(resp)
	assert.Error(t, err)
}
