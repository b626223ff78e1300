package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/contract-admin/internal/handler/health"
	"github.com/jwalitptl/contract-admin/internal/handler/notification"
	"github.com/jwalitptl/contract-admin/internal/handler/prometheus"
	"github.com/jwalitptl/contract-admin/internal/live"
	"github.com/jwalitptl/contract-admin/internal/middleware"
	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository/memory"
	notificationService "github.com/jwalitptl/contract-admin/internal/service/notification"
	"github.com/jwalitptl/contract-admin/pkg/auth"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
)

type noBroadcast struct{}

func (noBroadcast) EnqueueBroadcast(ctx context.Context, payload model.BroadcastPayload) error {
	return nil
}

type denyAll struct{}

func (denyAll) CanReceive(ctx context.Context, userID, contractID int64) bool { return false }

func TestRouterSetup(t *testing.T) {
	reg := prom.NewRegistry()
	m := metrics.NewMetrics("test", reg)
	liveReg := live.NewRegistry(m)
	svc := notificationService.NewService(memory.NewNotificationRepository(), live.NewLocalDeliverer(liveReg, m, logger.Nop()), m, logger.Nop())
	jwt := auth.NewJWTService("secret", "test", time.Hour)

	r := NewRouter(
		middleware.NewAuthMiddleware(jwt),
		health.NewHandler(nil),
		notification.NewHandler(svc, liveReg, noBroadcast{}, denyAll{}, notification.Config{}, logger.Nop()),
		prometheus.New(reg),
		RouterConfig{Mode: gin.TestMode, RateLimit: 100, RateBurst: 100, CORSConfig: middleware.DefaultCORSConfig()},
	)
	r.Setup()

	token, err := jwt.GenerateAccessToken(3, model.RoleMember)
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"health is public", "/api/v1/health/live", "", http.StatusOK},
		{"metrics is public", "/api/v1/metrics", "", http.StatusOK},
		{"notifications need auth", "/api/v1/notifications", "", http.StatusUnauthorized},
		{"notifications with token", "/api/v1/notifications", token, http.StatusOK},
		{"unknown route", "/api/v1/nothing", token, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.Engine().ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
		})
	}
}
