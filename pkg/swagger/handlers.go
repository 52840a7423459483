package swagger

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/onramp/pkg/httputil"
)

//go:embed openapi.yaml
var openapiSpec []byte

var swaggerUI = template.Must(template.New("swagger").Parse(swaggerUITemplate))

// SwaggerHandlers serves the OpenAPI document and a Swagger UI page
type SwaggerHandlers struct {
	jsonOnce sync.Once
	jsonSpec []byte
	jsonErr  error
}

// NewSwaggerHandlers creates a new SwaggerHandlers instance
func NewSwaggerHandlers() *SwaggerHandlers {
	return &SwaggerHandlers{}
}

// RegisterRoutes registers the swagger routes with the router
func (h *SwaggerHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/openapi.yaml", h.serveOpenAPISpec).Methods("GET")
	router.HandleFunc("/openapi.json", h.serveOpenAPISpecJSON).Methods("GET")
	router.HandleFunc("/swagger-ui", h.serveSwaggerUI).Methods("GET")
	router.HandleFunc("/api-docs", h.serveSwaggerUI).Methods("GET") // Alias
}

func (h *SwaggerHandlers) serveOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}

func (h *SwaggerHandlers) serveOpenAPISpecJSON(w http.ResponseWriter, r *http.Request) {
	h.jsonOnce.Do(func() {
		h.jsonSpec, h.jsonErr = specJSON(openapiSpec)
	})
	if h.jsonErr != nil {
		httputil.WriteInternalError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.jsonSpec)
}

// specJSON converts the YAML document to JSON
func specJSON(spec []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}
	return out, nil
}

func (h *SwaggerHandlers) serveSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := swaggerUI.Execute(w, nil); err != nil {
		httputil.WriteInternalError(w)
	}
}

const swaggerUITemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Onramp API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui.css" />
  <style>
    body { margin: 0; padding: 0; }
  </style>
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui-bundle.js" charset="UTF-8"></script>
<script>
window.onload = function() {
  window.ui = SwaggerUIBundle({
    url: "/openapi.json",
    dom_id: '#swagger-ui',
    deepLinking: true
  });
};
</script>
</body>
</html>`
