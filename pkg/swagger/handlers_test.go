package swagger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() *mux.Router {
	router := mux.NewRouter()
	NewSwaggerHandlers().RegisterRoutes(router)
	return router
}

func TestRouteIntegration(t *testing.T) {
	router := newRouter()

	tests := []struct {
		name                 string
		path                 string
		expectedContentType  string
		expectedBodyContains []string
	}{
		{
			name:                 "YAML spec",
			path:                 "/openapi.yaml",
			expectedContentType:  "application/x-yaml",
			expectedBodyContains: []string{"openapi: 3.0.3"},
		},
		{
			name:                 "JSON spec",
			path:                 "/openapi.json",
			expectedContentType:  "application/json",
			expectedBodyContains: []string{`"openapi"`, `"paths"`},
		},
		{
			name:                 "Swagger UI",
			path:                 "/swagger-ui",
			expectedContentType:  "text/html; charset=utf-8",
			expectedBodyContains: []string{"<!DOCTYPE html>", "Onramp API", "/openapi.json"},
		},
		{
			name:                 "API docs alias",
			path:                 "/api-docs",
			expectedContentType:  "text/html; charset=utf-8",
			expectedBodyContains: []string{"SwaggerUIBundle"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectedContentType, w.Header().Get("Content-Type"))
			for _, expected := range tt.expectedBodyContains {
				assert.Contains(t, w.Body.String(), expected)
			}
		})
	}
}

func TestServeOpenAPISpec_MatchesEmbedded(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest("GET", "/openapi.yaml", nil))

	assert.Equal(t, openapiSpec, w.Body.Bytes())
}

func TestServeOpenAPISpecJSON_DocumentsRoutes(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest("GET", "/openapi.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Contains(t, doc.Paths, "/orgs/{org_id}/usage-limits")
	assert.Contains(t, doc.Paths["/sites/{site_id}/agents"], "post")
	assert.Contains(t, doc.Paths["/agents/{agent_id}/sessions"], "post")
	assert.Contains(t, doc.Paths["/billing/webhook"], "post")
}

func TestSpecJSON_InvalidYAML(t *testing.T) {
	_, err := specJSON([]byte("openapi: [unterminated"))
	assert.Error(t, err)
}

func TestOpenAPISpecNotEmpty(t *testing.T) {
	assert.NotEmpty(t, openapiSpec)
}
