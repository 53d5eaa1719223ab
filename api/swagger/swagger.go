package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Bus Transport API",
        "description": "Enrollment request lifecycle and billing for school transport",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Requests", "description": "Enrollment request lifecycle"},
        {"name": "Notifications", "description": "Recipient inboxes"},
        {"name": "Exports", "description": "Document downloads"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List requests visible to the caller",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "guardian_id", "in": "query", "type": "string", "description": "Administrators only"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Requests"],
                "summary": "Submit a new request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRequestRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get request detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Requests"],
                "summary": "Withdraw a pending request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Request is no longer pending"}
                }
            }
        },
        "/requests/{id}/transition": {
            "put": {
                "tags": ["Requests"],
                "summary": "Apply a workflow transition",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid transition or state"}
                }
            }
        },
        "/requests/{id}/confirm-payment": {
            "post": {
                "tags": ["Requests"],
                "summary": "Confirm an invoice payment with a verification code",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConfirmPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Verification code mismatch"},
                    "400": {"description": "Request not awaiting payment"}
                }
            }
        },
        "/requests/{id}/receipt": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download the invoice receipt",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF receipt"}
                }
            }
        },
        "/payments/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export the payment ledger as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "month", "in": "query", "type": "integer"},
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "enrollment_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV ledger"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the caller's notifications",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateRequestRequest": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "enum": ["ENROLLMENT", "COMPLAINT", "OTHER"]},
                "student_id": {"type": "string"},
                "student_name": {"type": "string"},
                "grade_level": {"type": "string"},
                "transport_mode": {"type": "string", "enum": ["ROUND_TRIP", "ONE_WAY"]},
                "subscription_period": {"type": "string", "enum": ["MONTHLY", "ANNUAL"]},
                "zone": {"type": "string"}
            }
        },
        "TransitionRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["status"]
        },
        "ConfirmPaymentRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "method": {"type": "string", "enum": ["CASH", "TRANSFER"]}
            },
            "required": ["code"]
        },
        "Request": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "student_id": {"type": "string"},
                "guardian_id": {"type": "string"},
                "status": {"type": "string"},
                "attributes": {"type": "object"},
                "verification_code": {"type": "string"},
                "invoice_amount": {"type": "integer"},
                "rejection_reason": {"type": "string"},
                "created_at": {"type": "string"},
                "processed_at": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
