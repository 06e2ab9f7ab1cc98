// Package docs registers the OpenAPI description served at /swagger.
// Regenerate with `swag init -g cmd/server/main.go -o internal/http/docs`
// after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/conversations": {
            "get": {
                "operationId": "listConversations",
                "tags": ["Conversations"],
                "summary": "List conversations",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListConversationsResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "operationId": "openConversation",
                "tags": ["Conversations"],
                "summary": "Open the conversation with a friend",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.OpenConversationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Already existed", "schema": {"$ref": "#/definitions/handlers.OpenConversationResponse"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.OpenConversationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/messages": {
            "get": {
                "operationId": "fetchWindow",
                "tags": ["Messages"],
                "summary": "Read a page of messages",
                "description": "Page 1 holds the newest messages. Messages inside a page are newest first.",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "minimum": 1, "default": 1, "name": "page", "in": "query"},
                    {"type": "string", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Window"}, "headers": {"ETag": {"type": "string"}}},
                    "304": {"description": "Not Modified"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "operationId": "sendMessage",
                "tags": ["Messages"],
                "summary": "Send a message",
                "consumes": ["application/json", "multipart/form-data"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"in": "body", "name": "body", "schema": {"$ref": "#/definitions/handlers.SendMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}, "headers": {"Idempotency-Replayed": {"type": "string"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "413": {"description": "Payload Too Large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Asset service unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/messages/{messageId}": {
            "get": {
                "operationId": "getMessage",
                "tags": ["Messages"],
                "summary": "Read one message",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "messageId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "patch": {
                "operationId": "editMessage",
                "tags": ["Messages"],
                "summary": "Edit a message",
                "consumes": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "messageId", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.EditMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "operationId": "deleteMessage",
                "tags": ["Messages"],
                "summary": "Delete a message",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "messageId", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.UserSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "displayName": {"type": "string"},
                "avatarUrl": {"type": "string"},
                "status": {"type": "string", "enum": ["online", "offline"]},
                "lastActive": {"type": "string", "format": "date-time"}
            }
        },
        "domain.MessageView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "conversationId": {"type": "string"},
                "clientId": {"type": "string"},
                "sender": {"$ref": "#/definitions/domain.UserSummary"},
                "content": {"type": "string"},
                "image": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"},
                "isEdited": {"type": "boolean"},
                "forwardedFromUser": {"$ref": "#/definitions/domain.UserSummary"},
                "forwardedFromPost": {"type": "string"},
                "replyTo": {"type": "string"}
            }
        },
        "domain.ConversationSummary": {
            "type": "object",
            "properties": {
                "conversationId": {"type": "string"},
                "peer": {"$ref": "#/definitions/domain.UserSummary"},
                "lastMessage": {"$ref": "#/definitions/domain.MessageView"},
                "isGroup": {"type": "boolean"}
            }
        },
        "domain.Window": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.MessageView"}},
                "hasMore": {"type": "boolean"},
                "peerSnapshot": {"$ref": "#/definitions/domain.UserSummary"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handlers.ListConversationsResponse": {
            "type": "object",
            "properties": {
                "conversations": {"type": "array", "items": {"$ref": "#/definitions/domain.ConversationSummary"}}
            }
        },
        "handlers.OpenConversationRequest": {
            "type": "object",
            "required": ["peerId"],
            "properties": {"peerId": {"type": "string"}}
        },
        "handlers.OpenConversationResponse": {
            "type": "object",
            "properties": {
                "conversationId": {"type": "string"},
                "peerId": {"type": "string"},
                "created": {"type": "boolean"}
            }
        },
        "handlers.SendMessageRequest": {
            "type": "object",
            "properties": {
                "clientId": {"type": "string"},
                "content": {"type": "string"},
                "forwardedFromUser": {"type": "string"},
                "forwardedFromPost": {"type": "string"},
                "replyTo": {"type": "string"}
            }
        },
        "handlers.EditMessageRequest": {
            "type": "object",
            "required": ["content"],
            "properties": {"content": {"type": "string"}}
        },
        "handlers.MessageResponse": {
            "type": "object",
            "properties": {"message": {"$ref": "#/definitions/domain.MessageView"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Social Chat API",
	Description:      "Two-party conversations between friends with realtime push over /ws.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
