package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestStatus(t *testing.T) {
	boom := func(context.Context) error { return errors.New("boom") }

	tests := []struct {
		name     string
		critical bool
		fn       CheckFunc
		want     Status
	}{
		{"healthy", true, ok, StatusHealthy},
		{"critical failure", true, boom, StatusUnhealthy},
		{"optional failure", false, boom, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(time.Second)
			c.Register("base", true, ok)
			c.Register("dep", tt.critical, tt.fn)
			assert.Equal(t, StatusUnknown, c.Status(), "nothing has run yet")

			c.Run(context.Background())
			assert.Equal(t, tt.want, c.Status())
		})
	}
}

func TestRunTimesOutAndRecovers(t *testing.T) {
	c := NewChecker(20 * time.Millisecond)
	c.Register("slow", true, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	c.Register("panics", false, func(context.Context) error { panic("bad") })

	results := c.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Contains(t, results["slow"].Error, "timed out")
	assert.Contains(t, results["panics"].Error, "panicked")
	assert.Equal(t, []string{"panics", "slow"}, c.Names())
}

func TestHandlers(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("dictionary", true, ok)
	mux := http.NewServeMux()
	c.Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var rep Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.True(t, rep.Ready)
	assert.Equal(t, StatusHealthy, rep.Checks["dictionary"].Status)
}
