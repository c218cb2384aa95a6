package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStudioRouter(cfg StudioConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), Studio(cfg))
	router.GET("/sessions", func(c *gin.Context) { c.String(http.StatusOK, GetStudioID(c).String()) })
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, GetStudioID(c).String()) })
	return router
}

func TestStudio(t *testing.T) {
	fallback := uuid.New()
	header := uuid.New()

	tests := []struct {
		name    string
		cfg     StudioConfig
		path    string
		header  string
		status  int
		studio  string
		errCode string
	}{
		{"header wins over default", StudioConfig{Default: fallback}, "/sessions", header.String(), http.StatusOK, header.String(), ""},
		{"falls back to default", StudioConfig{Default: fallback}, "/sessions", "", http.StatusOK, fallback.String(), ""},
		{"malformed header", StudioConfig{Default: fallback}, "/sessions", "studio-1", http.StatusBadRequest, "", dto.ErrCodeInvalidInput},
		{"no header and no default", StudioConfig{}, "/sessions", "", http.StatusBadRequest, "", ErrCodeStudioRequired},
		{"skipped path", StudioConfig{SkipPaths: []string{"/health"}}, "/health", "", http.StatusOK, uuid.Nil.String(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(StudioHeader, tt.header)
			}
			w := httptest.NewRecorder()
			newStudioRouter(tt.cfg).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.errCode == "" {
				assert.Equal(t, tt.studio, w.Body.String())
				return
			}
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.errCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestGetStudioID_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, uuid.Nil, GetStudioID(c))

	c.Set(StudioIDKey, "not-a-uuid-value")
	assert.Equal(t, uuid.Nil, GetStudioID(c))
}
