package openapi

import (
	"encoding/json"
	"fmt"
	"sort"

	pkgstrings "metamcp/pkg/strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const maxSummaryLength = 120

// GenerateSchema renders an OpenAPI 3.1.0 document for a namespace
// endpoint's merged tool list. Each tool becomes one path /{toolName},
// POST when the tool declares input properties and GET otherwise. The
// output is byte-stable for identical tool lists: tools are sorted by name
// and encoding/json orders object keys deterministically.
func GenerateSchema(endpointName string, tools []mcp.Tool) ([]byte, error) {
	sorted := append([]mcp.Tool(nil), tools...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	paths := make(map[string]interface{}, len(sorted))
	for _, tool := range sorted {
		paths["/"+tool.Name] = pathItem(tool)
	}

	doc := map[string]interface{}{
		"openapi": "3.1.0",
		"info": map[string]interface{}{
			"title":   endpointName,
			"version": "1.0.0",
		},
		"servers": []interface{}{
			map[string]interface{}{
				"url": fmt.Sprintf("/metamcp/%s/api", endpointName),
			},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"HTTPValidationError": httpValidationErrorSchema(),
				"ValidationError":     validationErrorSchema(),
			},
		},
	}

	return json.MarshalIndent(doc, "", "  ")
}

func pathItem(tool mcp.Tool) map[string]interface{} {
	operation := map[string]interface{}{
		"operationId": tool.Name,
		"summary":     pkgstrings.TruncateDescription(tool.Description, maxSummaryLength),
		"responses": map[string]interface{}{
			"200": map[string]interface{}{
				"description": "Successful Response",
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": map[string]interface{}{},
					},
				},
			},
			"422": map[string]interface{}{
				"description": "Validation Error",
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": map[string]interface{}{
							"$ref": "#/components/schemas/HTTPValidationError",
						},
					},
				},
			},
		},
	}

	method := "get"
	if len(tool.InputSchema.Properties) > 0 {
		method = "post"
		operation["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": inputSchema(tool),
				},
			},
		}
	}

	return map[string]interface{}{method: operation}
}

func inputSchema(tool mcp.Tool) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": tool.InputSchema.Properties,
	}
	if len(tool.InputSchema.Required) > 0 {
		required := append([]string(nil), tool.InputSchema.Required...)
		sort.Strings(required)
		schema["required"] = required
	}
	return schema
}

func httpValidationErrorSchema() map[string]interface{} {
	return map[string]interface{}{
		"title": "HTTPValidationError",
		"type":  "object",
		"properties": map[string]interface{}{
			"detail": map[string]interface{}{
				"title": "Detail",
				"type":  "array",
				"items": map[string]interface{}{
					"$ref": "#/components/schemas/ValidationError",
				},
			},
		},
	}
}

func validationErrorSchema() map[string]interface{} {
	return map[string]interface{}{
		"title":    "ValidationError",
		"type":     "object",
		"required": []interface{}{"loc", "msg", "type"},
		"properties": map[string]interface{}{
			"loc": map[string]interface{}{
				"title": "Location",
				"type":  "array",
				"items": map[string]interface{}{
					"anyOf": []interface{}{
						map[string]interface{}{"type": "string"},
						map[string]interface{}{"type": "integer"},
					},
				},
			},
			"msg": map[string]interface{}{
				"title": "Message",
				"type":  "string",
			},
			"type": map[string]interface{}{
				"title": "Error Type",
				"type":  "string",
			},
		},
	}
}
