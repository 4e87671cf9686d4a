// Package openapi renders OpenAPI 3.1.0 documents from merged MCP tool
// lists, for the HTTP/JSON surface of a namespace endpoint.
package openapi
