package api

import (
	"fmt"

	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document with one call path per
// procedure of reg.
func buildOpenAPIDoc(reg *registry.Registry) map[string]any {
	paths := map[string]any{
		"/healthz":    map[string]any{"get": simpleOp("healthz", "Daemon health and registry digest")},
		"/procedures": map[string]any{"get": simpleOp("listProcedures", "Active procedure table")},
		"/outcomes":   map[string]any{"get": simpleOp("listOutcomes", "Recent call outcomes")},
		"/events":     map[string]any{"get": simpleOp("streamEvents", "Server-sent outcome stream; ?type= filters by entry type")},
	}
	for _, p := range reg.Procedures() {
		paths[fmt.Sprintf("/procedures/%s", p.Name)] = map[string]any{
			"post": procedureOp(p),
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "pqd",
			"version": reg.Digest(),
		},
		"paths": paths,
	}
}

func simpleOp(id, summary string) map[string]any {
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
	}
}

// procedureOp builds the operation for a single procedure call.
func procedureOp(p *registry.Procedure) map[string]any {
	items := make([]any, 0, len(p.Args))
	for _, a := range p.UserArgs() {
		items = append(items, map[string]any{"title": a.Name, "type": schemaType(a.Type)})
	}

	summary := p.Name + p.Signature()
	if p.Usage != "" {
		summary += ": " + p.Usage
	}

	return map[string]any{
		"operationId": p.Name,
		"summary":     summary,
		"tags":        []string{p.Method},
		"requestBody": map[string]any{
			"required": len(items) > 0,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"args": map[string]any{
								"type":        "array",
								"prefixItems": items,
								"minItems":    len(items),
								"maxItems":    len(items),
							},
						},
					},
				},
			},
		},
		"responses": map[string]any{
			"200": map[string]any{"description": "Call accepted"},
			"400": map[string]any{"description": "Bad arguments"},
			"502": map[string]any{"description": "Transport failure or service rejection"},
			"504": map[string]any{"description": "Call timed out"},
		},
	}
}

func schemaType(t wire.Type) string {
	switch t {
	case wire.TypeBool:
		return "boolean"
	case wire.TypeDouble:
		return "number"
	default:
		return "integer"
	}
}
