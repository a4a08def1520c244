package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Command defines the base interface for all commands
type Command interface {
	// Validate validates the command parameters
	Validate() error

	// GetType returns the command type
	GetType() string

	// GetID returns the command ID
	GetID() string
}

// BaseCommand provides common functionality for all commands
type BaseCommand struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBaseCommand creates a new base command
func NewBaseCommand(commandType string) BaseCommand {
	return BaseCommand{
		ID:        uuid.NewString(),
		Type:      commandType,
		CreatedAt: time.Now(),
	}
}

// GetID returns the command ID
func (c BaseCommand) GetID() string {
	return c.ID
}

// GetType returns the command type
func (c BaseCommand) GetType() string {
	return c.Type
}

// Validate provides default validation (can be overridden)
func (c BaseCommand) Validate() error {
	if c.ID == "" {
		return NewValidationError("command ID is required")
	}
	if c.Type == "" {
		return NewValidationError("command type is required")
	}
	return nil
}

// CommandError represents a command-specific error
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const ErrCodeValidation = "VALIDATION_ERROR"

// NewValidationError creates a validation error
func NewValidationError(message string) CommandError {
	return CommandError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}
