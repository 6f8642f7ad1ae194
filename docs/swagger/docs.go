// Package swagger holds the OpenAPI document served under /docs.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/killallgit/sensitive-data-api"
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
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Service version",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.HealthResponse"}}
                }
            }
        },
        "/api/v1/classify": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["classify"],
                "summary": "Classify one text",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.ClassifyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/v1/classify/batch": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["classify"],
                "summary": "Classify many texts",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.BatchClassifyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/v1/classify/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["classify"],
                "summary": "Engine configuration and model state",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/feedback": {
            "get": {
                "produces": ["application/json"],
                "tags": ["feedback"],
                "summary": "List feedback",
                "parameters": [
                    {"type": "boolean", "name": "is_correct", "in": "query"},
                    {"type": "boolean", "name": "incorporated", "in": "query"},
                    {"type": "string", "name": "user_id", "in": "query"},
                    {"type": "string", "name": "since", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["feedback"],
                "summary": "Submit feedback on a classification",
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header"},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.FeedbackRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/v1/feedback/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["feedback"],
                "summary": "Feedback accuracy over a window",
                "parameters": [{"type": "integer", "name": "days", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/feedback/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["feedback"],
                "summary": "Get feedback",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/training-data": {
            "get": {
                "produces": ["application/json"],
                "tags": ["training-data"],
                "summary": "List training examples",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["training-data"],
                "summary": "Add a curated training example",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.TrainingExampleRequest"}}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}
            }
        },
        "/api/v1/training-data/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["training-data"],
                "summary": "Training data counts",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/training-data/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["training-data"],
                "summary": "Get a training example",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/training-data/{id}/verify": {
            "post": {
                "produces": ["application/json"],
                "tags": ["training-data"],
                "summary": "Mark a training example verified",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/training/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "List training runs",
                "parameters": [
                    {"type": "string", "name": "lineage", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Start a training cycle",
                "parameters": [
                    {"type": "boolean", "name": "wait", "in": "query"},
                    {"in": "body", "name": "request", "schema": {"$ref": "#/definitions/types.TrainingRunRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "202": {"description": "Accepted"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/v1/training/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Get a training run",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/training/runs/{id}/cancel": {
            "post": {
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Cancel an executing training run",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/training/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "List background jobs",
                "parameters": [
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/training/jobs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Get a background job",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Delete a permanently failed job",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/training/jobs/{id}/cancel": {
            "post": {
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Cancel a queued job",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/training/jobs/{id}/retry": {
            "post": {
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Retry a failed job",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "List model versions",
                "parameters": [{"type": "string", "name": "lineage", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/models/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "Get a model version with metrics",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/models/{id}/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "Evaluation metrics of a model version",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/models/{id}/promote": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "Activate a model version",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"in": "body", "name": "request", "schema": {"$ref": "#/definitions/types.PromoteRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/models/{id}/deactivate": {
            "post": {
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "Deactivate a model version",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "definitions": {
        "models.Entity": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "label": {"type": "string"},
                "start": {"type": "integer"},
                "end": {"type": "integer"},
                "confidence": {"type": "number"},
                "source": {"type": "string"}
            }
        },
        "types.ClassifyRequest": {
            "type": "object",
            "required": ["text"],
            "properties": {
                "text": {"type": "string", "example": "Contact John Smith at 123-45-6789"},
                "types": {"type": "array", "items": {"type": "string"}},
                "use_pattern": {"type": "boolean"},
                "use_statistical": {"type": "boolean"}
            }
        },
        "types.BatchClassifyRequest": {
            "type": "object",
            "required": ["texts"],
            "properties": {
                "texts": {"type": "array", "items": {"type": "string"}},
                "types": {"type": "array", "items": {"type": "string"}},
                "use_pattern": {"type": "boolean"},
                "use_statistical": {"type": "boolean"}
            }
        },
        "types.FeedbackRequest": {
            "type": "object",
            "required": ["text", "is_correct"],
            "properties": {
                "text": {"type": "string"},
                "entities": {"type": "array", "items": {"$ref": "#/definitions/models.Entity"}},
                "is_correct": {"type": "boolean"},
                "corrected_entities": {"type": "array", "items": {"$ref": "#/definitions/models.Entity"}},
                "corrected_type": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "types.TrainingExampleRequest": {
            "type": "object",
            "required": ["text", "entities"],
            "properties": {
                "text": {"type": "string"},
                "entities": {"type": "array", "items": {"$ref": "#/definitions/models.Entity"}},
                "classification_type": {"type": "string"},
                "source": {"type": "string", "example": "manual"},
                "language": {"type": "string", "example": "en"},
                "verified": {"type": "boolean"}
            }
        },
        "types.TrainingRunRequest": {
            "type": "object",
            "properties": {
                "lineage": {"type": "string", "example": "default"},
                "iterations": {"type": "integer"},
                "batch_size": {"type": "integer"},
                "dropout": {"type": "number"},
                "test_split": {"type": "number"},
                "min_samples": {"type": "integer"},
                "seed": {"type": "integer"},
                "include_feedback": {"type": "boolean"},
                "include_datasets": {"type": "boolean"},
                "limit": {"type": "integer"},
                "priority": {"type": "integer"}
            }
        },
        "types.PromoteRequest": {
            "type": "object",
            "properties": {"production": {"type": "boolean"}}
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"},
                "error": {"type": "string"},
                "details": {}
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "database": {"type": "object", "additionalProperties": true},
                "statistical": {"type": "object", "additionalProperties": true}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Sensitive Data Classifier API",
	Description:      "Detects sensitive entities in text with patterns and a statistical model, and improves the model from user feedback",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
