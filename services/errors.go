package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ValidationError marks malformed or missing input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError marks an absent entity. NotQualified is set when the absence
// is the answer to "may this participant act in this round".
type NotFoundError struct {
	Resource     string
	Msg          string
	NotQualified bool
}

func (e *NotFoundError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Resource + " not found"
}

func notQualified(round int, action string) error {
	return &NotFoundError{
		Resource:     "round record",
		Msg:          fmt.Sprintf("You are not qualified for Round %d %s.", round, action),
		NotQualified: true,
	}
}

// AuthorizationWindowError is returned when a round is closed, not yet open
// or has the feature switched off.
type AuthorizationWindowError struct {
	Reason string
}

func (e *AuthorizationWindowError) Error() string { return e.Reason }

// ForbiddenError is returned when the caller's role does not allow the read.
type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string { return e.Msg }

// StorageError wraps a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err, translating a missing row into a NotFoundError.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Resource: op}
	}
	if isDomainError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	var v *ValidationError
	var n *NotFoundError
	var w *AuthorizationWindowError
	var f *ForbiddenError
	var s *StorageError
	return errors.As(err, &v) || errors.As(err, &n) || errors.As(err, &w) || errors.As(err, &f) || errors.As(err, &s)
}

// StatusFor maps an error to the HTTP status it should be surfaced with.
func StatusFor(err error) int {
	var v *ValidationError
	var n *NotFoundError
	var w *AuthorizationWindowError
	var f *ForbiddenError
	switch {
	case errors.As(err, &v):
		return fiber.StatusBadRequest
	case errors.As(err, &n):
		if n.NotQualified {
			return fiber.StatusForbidden
		}
		return fiber.StatusNotFound
	case errors.As(err, &w), errors.As(err, &f):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ [API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
