// Package docs is generated by swag. Regenerate with
// swag init -g cmd/api/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Log in",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/service.LoginInput"}
                    }
                ],
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/standups/goal": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Standups"],
                "summary": "Set today's goal",
                "responses": {
                    "200": {"description": "Standup with goal", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "409": {"description": "Goal already set", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/standups/{id}/submit": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Standups"],
                "summary": "Submit the end-of-day achievement",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Submitted standup", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "409": {"description": "Already submitted", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/blockers": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Blockers"],
                "summary": "Raise a blocker",
                "responses": {
                    "201": {"description": "Blocker raised", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Healthy", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "503": {"description": "A dependency is unavailable", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        }
    },
    "definitions": {
        "response.Envelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "message": {"type": "string"},
                "error": {"$ref": "#/definitions/response.ErrorBody"}
            }
        },
        "response.ErrorBody": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "details": {}
            }
        },
        "service.LoginInput": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Standup Desk API",
	Description:      "Backend API for daily standups, blockers and attendance",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
