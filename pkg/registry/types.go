// Package registry implements the Straca operation registry.
package registry

import (
	"github.com/stracadev/straca/pkg/dispatcher"
)

// Error codes returned in RegistryError.Code.
const (
	CodeServiceNotFound   = "SERVICE_NOT_FOUND"
	CodeOperationNotFound = "OPERATION_NOT_FOUND"
	CodeVersionMismatch   = "VERSION_MISMATCH"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
)

// Metadata documents an operation. It is never consulted by dispatch.
type Metadata struct {
	Description       string      `json:"description,omitempty"`
	Payload           interface{} `json:"payload,omitempty"`
	PayloadRationale  string      `json:"payloadRationale,omitempty"`
	Response          interface{} `json:"response,omitempty"`
	ResponseRationale string      `json:"responseRationale,omitempty"`
}

// Operation is one named handler inside a service.
type Operation struct {
	Name    string
	Handler dispatcher.Handler
	Metadata
}

// Service is a service descriptor accepted by AddService.
type Service struct {
	Name        string
	Version     string
	Description string
	Operations  []Operation
}

// DescribeOutput holds the result of the describe operation.
type DescribeOutput struct {
	Services []ServiceDescription `json:"services"`
}

// ServiceDescription documents one registered service.
type ServiceDescription struct {
	Service     string                 `json:"service"`
	Version     string                 `json:"version,omitempty"`
	Description string                 `json:"description,omitempty"`
	Operations  []OperationDescription `json:"operations"`
}

// OperationDescription documents one registered operation.
type OperationDescription struct {
	Operation string `json:"operation"`
	Metadata
}

// HealthOutput holds the result of the health check.
type HealthOutput struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Services  int             `json:"services"`
	Timestamp string          `json:"timestamp"`
}

// RegistryError is a structured routing error from the registry.
type RegistryError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RegistryError) Error() string {
	return e.Message
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}
