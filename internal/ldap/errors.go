package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorCategory represents different categories of directory errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// DirectoryError provides enhanced error information for directory operations.
type DirectoryError struct {
	Operation string        // The operation that failed
	Category  ErrorCategory // Error category
	LDAPCode  uint16        // LDAP result code
	Message   string        // Human-readable message
	DN        string        // DN involved in the operation (if applicable)
	Retryable bool          // Whether the error is retryable
	Cause     error         // Underlying error
}

func (e *DirectoryError) Error() string {
	var parts []string

	if e.LDAPCode > 0 {
		parts = append(parts, fmt.Sprintf("directory %s failed (code %d)", e.Operation, e.LDAPCode))
	} else {
		parts = append(parts, fmt.Sprintf("directory %s failed", e.Operation))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	return strings.Join(parts, " - ")
}

func (e *DirectoryError) IsRetryable() bool {
	return e.Retryable
}

func (e *DirectoryError) Unwrap() error {
	return e.Cause
}

// NewDirectoryError creates a directory error from an underlying failure.
func NewDirectoryError(operation string, err error) *DirectoryError {
	if err == nil {
		return nil
	}

	dirErr := &DirectoryError{
		Operation: operation,
		Cause:     err,
	}

	if ldapResultErr, ok := err.(*ldap.Error); ok {
		dirErr.LDAPCode = ldapResultErr.ResultCode
		dirErr.Category = categorizeLDAPCode(ldapResultErr.ResultCode)
		dirErr.Retryable = isLDAPCodeRetryable(ldapResultErr.ResultCode)
		dirErr.Message = ldapCodeMessage(ldapResultErr.ResultCode)
	} else {
		dirErr.Category = categorizeGenericError(err)
		dirErr.Retryable = isGenericErrorRetryable(err)
		dirErr.Message = err.Error()
	}

	return dirErr
}

// WrapError wraps an error with operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if dirErr, ok := err.(*DirectoryError); ok {
		if dirErr.Operation == "" {
			dirErr.Operation = operation
		}
		return dirErr
	}

	return NewDirectoryError(operation, err)
}

// categorizeLDAPCode maps an LDAP result code to an error category.
func categorizeLDAPCode(code uint16) ErrorCategory {
	switch code {
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired:
		return ErrorCategoryAuthentication

	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute,
		ldap.LDAPResultUndefinedAttributeType:
		return ErrorCategoryNotFound

	case ldap.LDAPResultInvalidAttributeSyntax,
		ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultFilterError:
		return ErrorCategoryValidation

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultAdminLimitExceeded:
		return ErrorCategoryServer

	case ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

// categorizeGenericError categorizes non-LDAP errors by message.
func categorizeGenericError(err error) ErrorCategory {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "network"),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "broken pipe"):
		return ErrorCategoryConnection
	case strings.Contains(errStr, "authentication"),
		strings.Contains(errStr, "credentials"),
		strings.Contains(errStr, "password"):
		return ErrorCategoryAuthentication
	case strings.Contains(errStr, "permission"),
		strings.Contains(errStr, "access"),
		strings.Contains(errStr, "denied"):
		return ErrorCategoryPermission
	case strings.Contains(errStr, "not found"),
		strings.Contains(errStr, "no such"):
		return ErrorCategoryNotFound
	default:
		return ErrorCategoryUnknown
	}
}

// isLDAPCodeRetryable determines if an LDAP result code is transient.
func isLDAPCodeRetryable(code uint16) bool {
	switch code {
	case ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultConnectError:
		return true
	default:
		return false
	}
}

// isGenericErrorRetryable determines if a generic error is retryable.
func isGenericErrorRetryable(err error) bool {
	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"connection",
		"timeout",
		"network",
		"broken pipe",
		"connection reset",
		"temporary failure",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// ldapCodeMessage returns a human-readable message for common result codes.
func ldapCodeMessage(code uint16) string {
	switch code {
	case ldap.LDAPResultOperationsError:
		return "operations error"
	case ldap.LDAPResultProtocolError:
		return "protocol error"
	case ldap.LDAPResultTimeLimitExceeded:
		return "time limit exceeded"
	case ldap.LDAPResultSizeLimitExceeded:
		return "size limit exceeded"
	case ldap.LDAPResultStrongAuthRequired:
		return "strong authentication required"
	case ldap.LDAPResultAdminLimitExceeded:
		return "administrative limit exceeded"
	case ldap.LDAPResultNoSuchAttribute:
		return "requested attribute does not exist"
	case ldap.LDAPResultUndefinedAttributeType:
		return "attribute type is not defined"
	case ldap.LDAPResultConstraintViolation:
		return "constraint violation"
	case ldap.LDAPResultInvalidAttributeSyntax:
		return "invalid attribute syntax"
	case ldap.LDAPResultNoSuchObject:
		return "requested object does not exist"
	case ldap.LDAPResultInvalidDNSyntax:
		return "invalid DN syntax"
	case ldap.LDAPResultInappropriateAuthentication:
		return "inappropriate authentication method"
	case ldap.LDAPResultInvalidCredentials:
		return "invalid credentials"
	case ldap.LDAPResultInsufficientAccessRights:
		return "insufficient access rights"
	case ldap.LDAPResultBusy:
		return "server is busy"
	case ldap.LDAPResultUnavailable:
		return "server is unavailable"
	case ldap.LDAPResultUnwillingToPerform:
		return "server is unwilling to perform the operation"
	case ldap.LDAPResultServerDown:
		return "server is down"
	case ldap.LDAPResultTimeout:
		return "operation timed out"
	case ldap.LDAPResultFilterError:
		return "invalid search filter"
	case ldap.LDAPResultConnectError:
		return "connection error"
	default:
		return fmt.Sprintf("unknown directory error (code %d)", code)
	}
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if retryable, ok := err.(RetryableError); ok {
		return retryable.IsRetryable()
	}

	return isGenericErrorRetryable(err)
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	if dirErr, ok := err.(*DirectoryError); ok {
		return dirErr.Category
	}

	if ldapResultErr, ok := err.(*ldap.Error); ok {
		return categorizeLDAPCode(ldapResultErr.ResultCode)
	}

	return categorizeGenericError(err)
}

// IsNotFoundError checks if an error indicates a "not found" condition.
// Callers treat these as empty results, never as fatal failures.
func IsNotFoundError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryNotFound
}

// IsAuthenticationError checks if an error indicates an authentication problem.
func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}

// IsPermissionError checks if an error indicates a permission problem.
func IsPermissionError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryPermission
}
