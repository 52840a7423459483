// Package swagger serves the onramp OpenAPI document as YAML and JSON along
// with a Swagger UI page.
package swagger
