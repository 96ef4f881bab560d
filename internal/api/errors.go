package api

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"jsonapi-backend/internal/jsonapi"
	"jsonapi-backend/internal/query"
	"jsonapi-backend/internal/repository"
	"jsonapi-backend/internal/store"
)

// MediaType is the JSON:API content type.
const MediaType = "application/vnd.api+json"

type AppError struct {
	Code    string
	Status  int
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func UnknownTypeError(name string) *AppError {
	return &AppError{
		Code:    "unknown-type",
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("Unknown resource type: %s", name),
	}
}

func UnknownRelationshipError(typ, name string) *AppError {
	return &AppError{
		Code:    "unknown-relationship",
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("%s has no relationship %s", typ, name),
	}
}

// ErrorHandler renders every error as a JSON:API error document.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		coll, status := toCollection(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		return render(c, status, coll)
	}
}

func toCollection(err error) (jsonapi.ErrorCollection, int) {
	var coll jsonapi.ErrorCollection

	var verr *jsonapi.ValidationError
	if errors.As(err, &verr) {
		return verr.Collection, verr.Collection.Status()
	}

	var perr *repository.ParamsError
	if errors.As(err, &perr) {
		coll.AddFilterErrors(perr.Errors)
		return coll, fiber.StatusUnprocessableEntity
	}

	single := func(status int, code, title, detail string) (jsonapi.ErrorCollection, int) {
		coll.Add(jsonapi.ErrorObject{Status: strconv.Itoa(status), Code: code, Title: title, Detail: detail})
		return coll, status
	}

	var appErr *AppError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &appErr):
		return single(appErr.Status, appErr.Code, appErr.Message, "")
	case errors.Is(err, store.ErrNotFound):
		return single(fiber.StatusNotFound, "not-found", "Resource not found", err.Error())
	case errors.Is(err, store.ErrUniqueViolation):
		return single(fiber.StatusConflict, "conflict", "Resource conflicts with an existing one", "")
	case errors.Is(err, query.ErrUnsupported), errors.Is(err, query.ErrUnknownRelationship):
		return single(fiber.StatusUnprocessableEntity, "unsupported", "Unsupported relationship write", err.Error())
	case errors.As(err, &fiberErr):
		return single(fiberErr.Code, "http-"+strconv.Itoa(fiberErr.Code), fiberErr.Message, "")
	}
	return single(fiber.StatusInternalServerError, "internal", "Internal server error", "")
}

func render(c *fiber.Ctx, status int, body any) error {
	if err := c.Status(status).JSON(body); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, MediaType)
	return nil
}
