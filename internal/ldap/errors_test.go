package ldap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDirectoryError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCategory  ErrorCategory
		wantRetryable bool
	}{
		{
			name:          "no such object",
			err:           ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object")),
			wantCategory:  ErrorCategoryNotFound,
			wantRetryable: false,
		},
		{
			name:          "invalid credentials",
			err:           ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")),
			wantCategory:  ErrorCategoryAuthentication,
			wantRetryable: false,
		},
		{
			name:          "server busy",
			err:           ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")),
			wantCategory:  ErrorCategoryServer,
			wantRetryable: true,
		},
		{
			name:          "insufficient access",
			err:           ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied")),
			wantCategory:  ErrorCategoryPermission,
			wantRetryable: false,
		},
		{
			name:          "generic network error",
			err:           errors.New("connection reset by peer"),
			wantCategory:  ErrorCategoryConnection,
			wantRetryable: true,
		},
		{
			name:          "generic unknown error",
			err:           errors.New("something odd"),
			wantCategory:  ErrorCategoryUnknown,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dirErr := NewDirectoryError("search", tt.err)
			require.NotNil(t, dirErr)
			assert.Equal(t, tt.wantCategory, dirErr.Category)
			assert.Equal(t, tt.wantRetryable, dirErr.IsRetryable())
			assert.Equal(t, "search", dirErr.Operation)
			assert.ErrorIs(t, dirErr, tt.err)
		})
	}
}

func TestNewDirectoryError_Nil(t *testing.T) {
	assert.Nil(t, NewDirectoryError("search", nil))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("search", nil))

	// Wrapping an already-wrapped error keeps the original operation.
	inner := NewDirectoryError("bind", errors.New("boom"))
	wrapped := WrapError("search", inner)
	dirErr, ok := wrapped.(*DirectoryError)
	require.True(t, ok)
	assert.Equal(t, "bind", dirErr.Operation)

	// Wrapping a bare error adds the operation.
	wrapped = WrapError("search", errors.New("boom"))
	dirErr, ok = wrapped.(*DirectoryError)
	require.True(t, ok)
	assert.Equal(t, "search", dirErr.Operation)
}

func TestDirectoryError_Error(t *testing.T) {
	err := &DirectoryError{
		Operation: "search",
		LDAPCode:  ldap.LDAPResultNoSuchObject,
		Message:   "requested object does not exist",
		DN:        "CN=SRV01,CN=Servers,DC=example,DC=com",
	}

	msg := err.Error()
	assert.Contains(t, msg, "search failed")
	assert.Contains(t, msg, fmt.Sprintf("code %d", ldap.LDAPResultNoSuchObject))
	assert.Contains(t, msg, "CN=SRV01")
}

func TestIsNotFoundError(t *testing.T) {
	notFound := NewDirectoryError("search", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone")))
	assert.True(t, IsNotFoundError(notFound))
	assert.False(t, IsNotFoundError(errors.New("connection refused")))
	assert.False(t, IsNotFoundError(nil))

	// Raw go-ldap errors categorize without wrapping.
	raw := ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone"))
	assert.True(t, IsNotFoundError(raw))
}

func TestIsAuthenticationError(t *testing.T) {
	authErr := NewDirectoryError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("nope")))
	assert.True(t, IsAuthenticationError(authErr))
	assert.False(t, IsAuthenticationError(errors.New("timeout")))
}
