package api

import (
	"net/http"
	"strings"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the mounted routes.
func buildOpenAPIDoc(rts []route) map[string]any {
	paths := map[string]any{}

	for _, rt := range rts {
		if rt.handler == nil {
			continue
		}
		path := rt.path
		if rt.prefix {
			path += "{path}"
		}

		responses := map[string]any{
			"200": map[string]any{"description": "OK"},
		}
		operation := map[string]any{
			"operationId": operationID(rt.method, path),
			"summary":     rt.summary,
			"responses":   responses,
		}
		if rt.scopes != nil {
			operation["security"] = []any{map[string]any{"BearerAuth": []string{}}}
			operation["x-scopes"] = rt.scopes
			responses["401"] = map[string]any{"description": "Missing or invalid token"}
			responses["403"] = map[string]any{"description": "Insufficient scope"}
		}
		if rt.body != "" {
			operation["requestBody"] = map[string]any{
				"required": true,
				"content":  map[string]any{rt.body: map[string]any{}},
			}
			responses["400"] = map[string]any{"description": "Bad request"}
		}

		item, _ := paths[path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[path] = item
		}
		item[strings.ToLower(rt.method)] = operation
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Signboard",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func operationID(method, path string) string {
	clean := strings.NewReplacer("/", "_", "{", "", "}", "", "-", "_", ".", "_").Replace(strings.Trim(path, "/"))
	return strings.ToLower(method) + "_" + clean
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.routes()))
}
