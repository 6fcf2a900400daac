package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/contextkeys"
	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Details []domain.FieldError `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Log.WithError(err).Error("failed to encode JSON response")
		}
	}
}

// OK writes {success:true, data}.
func OK(w http.ResponseWriter, status int, data any) {
	JSON(w, status, envelope{Success: true, Data: data})
}

// Message writes {success:true, message} with optional data.
func Message(w http.ResponseWriter, msg string, data any) {
	JSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: msg})
}

// Fail writes {success:false, error} with the given status.
func Fail(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, envelope{Error: msg})
}

// Error writes an error JSON response, using AppError status codes when available.
func Error(w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			logger.Log.WithError(err).Error("request failed")
		}
		JSON(w, appErr.Code, envelope{Error: appErr.Message, Details: appErr.Details})
		return
	}
	logger.Log.WithError(err).Error("unhandled error")
	Fail(w, http.StatusInternalServerError, "internal server error")
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ErrBadRequest("request body is required")
		}
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}

// decodeOptionalJSON is DecodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}

// currentUser is the user the Auth middleware loaded.
func currentUser(r *http.Request) (*domain.User, error) {
	u, ok := r.Context().Value(contextkeys.User).(*domain.User)
	if !ok || u == nil {
		return nil, domain.ErrUnauthorized("authentication required")
	}
	return u, nil
}

func currentUserID(r *http.Request) (primitive.ObjectID, error) {
	u, err := currentUser(r)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return u.ID, nil
}

// ClientIP returns the client IP, preferring proxy headers if available.
func ClientIP(r *http.Request) string {
	// Check X-Real-IP first (set by Nginx)
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
