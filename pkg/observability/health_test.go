package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		cacheErr error
		want     string
	}{
		{name: "all healthy", want: StatusHealthy},
		{name: "non-critical down", cacheErr: errors.New("unreachable"), want: StatusDegraded},
		{name: "critical down", dbErr: errors.New("connection refused"), want: StatusUnhealthy},
		{name: "both down", dbErr: errors.New("x"), cacheErr: errors.New("y"), want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker("test", time.Second)
			checker.AddCheck("database", true, func(context.Context) error { return tt.dbErr })
			checker.AddCheck("payment_provider", false, func(context.Context) error { return tt.cacheErr })

			status := checker.Check(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Len(t, status.Dependencies, 2)
			if tt.dbErr != nil {
				assert.Equal(t, tt.dbErr.Error(), status.Dependencies["database"].Message)
			}
		})
	}
}

func TestHealthChecker_AddPinger(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("primary down"))

	checker := NewHealthChecker("test", time.Second)
	checker.AddPinger("database", true, db)
	assert.Equal(t, []string{"database"}, checker.Names())

	rec := httptest.NewRecorder()
	checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "test", status.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterHealthRoutes(t *testing.T) {
	checker := NewHealthChecker("", 0)
	checker.AddCheck("payment_provider", false, func(context.Context) error { return errors.New("slow") })

	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, checker)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}
