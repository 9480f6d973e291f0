package api

import (
	"net/http"

	"github.com/swaggo/swag"
)

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stats": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Store statistics and recovery summary",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.StatsResponse"}}}
            }
        },
        "/records": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["records"],
                "summary": "List keys in insertion order",
                "parameters": [
                    {"type": "integer", "description": "Keys to skip", "name": "offset", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ListResponse"}},
                    "400": {"description": "Bad Request"}
                }
            },
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/octet-stream"],
                "produces": ["application/json"],
                "tags": ["records"],
                "summary": "Append a record",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/api.AppendResponse"}},
                    "413": {"description": "Request Entity Too Large"}
                }
            }
        },
        "/records/{key}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/octet-stream"],
                "tags": ["records"],
                "summary": "Get a record by key",
                "parameters": [
                    {"type": "string", "description": "Record key", "name": "key", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Not Found"}
                }
            }
        }
    },
    "definitions": {
        "api.AppendResponse": {
            "type": "object",
            "properties": {"key": {"type": "string"}}
        },
        "api.ListResponse": {
            "type": "object",
            "properties": {
                "keys": {"type": "array", "items": {"type": "string"}},
                "total": {"type": "integer"},
                "offset": {"type": "integer"},
                "limit": {"type": "integer"}
            }
        },
        "api.StatsResponse": {
            "type": "object",
            "properties": {
                "key_mode": {"type": "string"},
                "keys": {"type": "integer"},
                "records": {"type": "integer"},
                "data_size": {"type": "integer"},
                "recovery": {"type": "object"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:9300",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "AORA REST API",
	Description:      "Append and read records of an append-only record store.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// handleSwaggerDoc serves the OpenAPI document
func handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	if err != nil {
		sendError(w, "Failed to generate Swagger documentation", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}
