package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Course Calendar API",
        "description": "Viewer-scoped course calendars computed from weekly slots and assignment deadlines.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Calendar", "description": "Computed calendar views, downloads and subscription feeds"},
        {"name": "Slots", "description": "Weekly time slots of courses"},
        {"name": "Ops", "description": "Probes and metrics"}
    ],
    "paths": {
        "/calendar/events": {
            "get": {
                "tags": ["Calendar"],
                "summary": "List calendar events",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "start", "in": "query", "type": "string", "description": "YYYY-MM-DD or RFC3339"},
                    {"name": "end", "in": "query", "type": "string", "description": "YYYY-MM-DD or RFC3339"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/CalendarEventsEnvelope"}},
                    "400": {"description": "Invalid or too wide window", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Data source timed out", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calendar/export": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Download calendar events",
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "text/calendar"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx", "ics"], "default": "csv"},
                    {"name": "start", "in": "query", "type": "string"},
                    {"name": "end", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format or invalid window", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calendar/feed.ics": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Recurring iCalendar feed",
                "produces": ["text/calendar"],
                "parameters": [
                    {"name": "token", "in": "query", "type": "string", "description": "Subscription token; a bearer token is accepted instead"}
                ],
                "responses": {
                    "200": {"description": "VCALENDAR document", "schema": {"type": "file"}},
                    "401": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calendar/feed-link": {
            "post": {
                "tags": ["Calendar"],
                "summary": "Issue a subscription link",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/slots": {
            "get": {
                "tags": ["Slots"],
                "summary": "List weekly slots of a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Slots"],
                "summary": "Add a weekly slot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SlotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlaps an existing slot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/slots/import": {
            "post": {
                "tags": ["Slots"],
                "summary": "Import a free-form schedule",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScheduleImportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlaps an existing slot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/slots/{id}": {
            "put": {
                "tags": ["Slots"],
                "summary": "Replace a weekly slot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Slot not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlaps an existing slot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Slots"],
                "summary": "Delete a weekly slot",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Slot not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CalendarEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "courseId": {"type": "string"},
                "courseTitle": {"type": "string"},
                "instructor": {"type": "string"},
                "type": {"type": "string", "enum": ["CLASS", "ASSIGNMENT"]},
                "date": {"type": "string", "example": "2025-08-11"},
                "startTime": {"type": "string", "example": "15:00"},
                "endTime": {"type": "string", "example": "16:30"},
                "isEnrolled": {"type": "boolean"}
            }
        },
        "CalendarEventsEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/CalendarEvent"}},
                "meta": {"type": "object"}
            }
        },
        "SlotRequest": {
            "type": "object",
            "required": ["dayOfWeek", "startTime", "endTime"],
            "properties": {
                "dayOfWeek": {"description": "0-6 with Sunday=0, or a weekday name"},
                "startTime": {"type": "string", "example": "09:00"},
                "endTime": {"type": "string", "example": "10:30"},
                "active": {"type": "boolean"}
            }
        },
        "ScheduleImportRequest": {
            "type": "object",
            "required": ["days", "startTime", "endTime"],
            "properties": {
                "days": {"type": "array", "items": {"type": "string"}, "example": ["mon", "wednesday", "5"]},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"},
                "active": {"type": "boolean"},
                "replaceExisting": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
