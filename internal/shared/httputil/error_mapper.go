package httputil

import (
	"context"
	"errors"
	"net/http"
)

// HTTPErrorInfo is the status and client-facing message for an error.
type HTTPErrorInfo struct {
	Status  int
	Message string
}

type errorMapping struct {
	err     error
	status  int
	message string
}

// ErrorMapper maps sentinel errors to HTTP responses with errors.Is, first match wins.
type ErrorMapper struct {
	mappings       []errorMapping
	defaultStatus  int
	defaultMessage string
}

func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{
		defaultStatus:  http.StatusInternalServerError,
		defaultMessage: "internal server error",
	}
}

func (m *ErrorMapper) WithMapping(err error, status int, message string) *ErrorMapper {
	m.mappings = append(m.mappings, errorMapping{err: err, status: status, message: message})
	return m
}

func (m *ErrorMapper) WithDefault(status int, message string) *ErrorMapper {
	m.defaultStatus = status
	m.defaultMessage = message
	return m
}

// Map converts err to a status and message. Context errors are mapped before the
// registered sentinels.
func (m *ErrorMapper) Map(err error) HTTPErrorInfo {
	if err == nil {
		return HTTPErrorInfo{Status: http.StatusOK}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return HTTPErrorInfo{Status: http.StatusGatewayTimeout, Message: "request timeout"}
	}
	if errors.Is(err, context.Canceled) {
		return HTTPErrorInfo{Status: http.StatusServiceUnavailable, Message: "request cancelled"}
	}
	for _, mapping := range m.mappings {
		if errors.Is(err, mapping.err) {
			msg := mapping.message
			if msg == "" {
				msg = err.Error()
			}
			return HTTPErrorInfo{Status: mapping.status, Message: msg}
		}
	}
	return HTTPErrorInfo{Status: m.defaultStatus, Message: m.defaultMessage}
}
