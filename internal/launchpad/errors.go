package launchpad

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	operationErrorTemplateConstant          = "%s operation failed: %s"
	operationErrorNoCauseTemplateConstant   = "%s operation failed"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	apiErrorTemplateConstant                = "launchpad returned %d for %s: %s"
	credentialsMissingMessageConstant       = "no launchpad credentials stored; run the login command first"
	authorizationPendingMessageConstant     = "request token has not been authorized yet"
	recipeNotFoundErrorTemplateConstant     = "recipe %s not found for project %s (owner %s)"
	repositoryNotFoundErrorTemplateConstant = "no git repository for project %s owned by %s"
)

// OperationName identifies a typed Launchpad web-service operation.
type OperationName string

// ErrCredentialsMissing indicates an authenticated operation was attempted
// without stored credentials.
var ErrCredentialsMissing = errors.New(credentialsMissingMessageConstant)

// ErrAuthorizationPending indicates the request token exchange has not been
// approved by the user yet.
var ErrAuthorizationPending = errors.New(authorizationPendingMessageConstant)

// OperationError wraps transport or service failures for an operation.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorNoCauseTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates a payload could not be decoded.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying cause.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// APIError carries a non-success HTTP response from the web service.
type APIError struct {
	StatusCode  int
	RequestURL  string
	BodyExcerpt string
}

// Error describes the API failure.
func (apiError APIError) Error() string {
	return fmt.Sprintf(apiErrorTemplateConstant, apiError.StatusCode, apiError.RequestURL, apiError.BodyExcerpt)
}

// IsNotFound reports whether the error is an APIError with status 404.
func IsNotFound(candidateError error) bool {
	var apiError APIError
	return errors.As(candidateError, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// IsPreconditionFailed reports whether the error is an APIError with
// status 412.
func IsPreconditionFailed(candidateError error) bool {
	var apiError APIError
	return errors.As(candidateError, &apiError) && apiError.StatusCode == http.StatusPreconditionFailed
}

// RecipeNotFoundError reports a delete or lookup against an absent recipe.
type RecipeNotFoundError struct {
	RecipeName  string
	ProjectName string
	OwnerName   string
}

// Error describes the missing recipe.
func (notFoundError RecipeNotFoundError) Error() string {
	return fmt.Sprintf(recipeNotFoundErrorTemplateConstant, notFoundError.RecipeName, notFoundError.ProjectName, notFoundError.OwnerName)
}

// RepositoryNotFoundError reports that a project has no owned git repository.
type RepositoryNotFoundError struct {
	ProjectName string
	OwnerName   string
}

// Error describes the missing repository.
func (notFoundError RepositoryNotFoundError) Error() string {
	return fmt.Sprintf(repositoryNotFoundErrorTemplateConstant, notFoundError.ProjectName, notFoundError.OwnerName)
}
