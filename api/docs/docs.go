// Package docs is generated by swaggo/swag from the handler annotations.
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
    "paths": {
        "/auth/login": {
            "post": {
                "description": "Exchange credentials for a token, also set as an HTTP-only cookie",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Login",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.CredentialsRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.LoginResponse"}},
                    "400": {"description": "Invalid request body", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Invalid credentials", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "description": "Clear the session cookie",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Logout",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "description": "Create a user account",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Register",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.CredentialsRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.RegisterResponse"}},
                    "400": {"description": "Invalid username or password", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Username taken", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/configurations": {
            "get": {
                "description": "Known configurations, their feature order and whether their model is loaded",
                "produces": ["application/json"],
                "tags": ["Predictions"],
                "summary": "List configurations",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Dependency health and loaded models",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/history": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "The authenticated user's predictions, newest first",
                "produces": ["application/json"],
                "tags": ["Predictions"],
                "summary": "Prediction history",
                "parameters": [
                    {"type": "integer", "description": "Maximum number of records", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid limit", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "User not authenticated", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "History temporarily unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/predict": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Run the configuration's model on raw input features given in its feature order",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Predictions"],
                "summary": "Predict droplet diameter",
                "parameters": [
                    {
                        "description": "Configuration and features",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.PredictRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PredictResponse"}},
                    "400": {"description": "Unknown configuration or invalid features", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Prediction failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Model could not be loaded", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.CredentialsRequest": {
            "type": "object",
            "required": ["password", "username"],
            "properties": {
                "password": {"type": "string", "example": "Str0ng!Pass"},
                "username": {"type": "string", "example": "lab_user"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "kind": {"type": "string", "example": "DimensionMismatch"},
                "cause": {"type": "string", "example": "ArtifactNotFound"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "checks": {"type": "object", "additionalProperties": {"type": "string"}},
                "loaded_models": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "handlers.LoginResponse": {
            "type": "object",
            "properties": {
                "expires_in": {"type": "integer", "example": 86400},
                "token": {"type": "string"},
                "username": {"type": "string", "example": "lab_user"}
            }
        },
        "handlers.PredictRequest": {
            "type": "object",
            "required": ["dataType", "inputData"],
            "properties": {
                "dataType": {"type": "string", "example": "type1"},
                "inputData": {"type": "array", "items": {"type": "number"}}
            }
        },
        "handlers.PredictResponse": {
            "type": "object",
            "properties": {
                "prediction": {"type": "number", "example": 142.7}
            }
        },
        "handlers.RegisterResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "integer", "example": 1},
                "username": {"type": "string", "example": "lab_user"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Droplet Predictor API",
	Description:      "Droplet diameter prediction for microfluidic droplet generators.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
