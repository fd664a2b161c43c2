package util

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/auth"
)

// Server error codes that the auditor cares about. All server error codes
// can be found at:
// https://github.com/mongodb/mongo/blob/master/src/mongo/base/error_codes.yml
const (
	NamespaceNotFound    = 26
	AuthenticationFailed = 18
	Unauthorized         = 13
)

// ConfigurationError means that the operator’s input is invalid. It is
// always returned before a run is recorded.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Setting, e.Reason)
}

// AuthenticationError means that a cluster rejected the credential.
type AuthenticationError struct {
	Username string
	Cause    error
}

func (e AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for user %#q: %v", e.Username, e.Cause)
}

func (e AuthenticationError) Unwrap() error {
	return e.Cause
}

// IsConfigurationError returns true if the error is, or wraps, a
// ConfigurationError.
func IsConfigurationError(err error) bool {
	var confErr ConfigurationError
	return errors.As(err, &confErr)
}

// IsAuthenticationError returns true if the error indicates a rejected
// credential, whether from the server or from the driver’s handshake.
func IsAuthenticationError(err error) bool {
	var authErr AuthenticationError
	if errors.As(err, &authErr) {
		return true
	}

	var driverAuthErr *auth.Error
	if errors.As(err, &driverAuthErr) {
		return true
	}

	code := GetErrorCode(err)
	return code == AuthenticationFailed || code == Unauthorized
}

// IsNamespaceNotFoundError returns true if this is a NamespaceNotFound error.
func IsNamespaceNotFoundError(err error) bool {
	return GetErrorCode(err) == NamespaceNotFound
}

// GetErrorCode returns the error code corresponding to the provided error.
// It returns 0 if the error is nil or not one of the supported error types.
func GetErrorCode(err error) int {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return int(cmdErr.Code)
	}

	var writeEx mongo.WriteException
	if errors.As(err, &writeEx) {
		if len(writeEx.WriteErrors) > 0 {
			return writeEx.WriteErrors[0].Code
		}
		if writeEx.WriteConcernError != nil {
			return writeEx.WriteConcernError.Code
		}
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		known := transientErrorCodes.Union(
			mapset.NewSet(NamespaceNotFound, AuthenticationFailed, Unauthorized),
		)

		for _, code := range known.ToSlice() {
			if serverErr.HasErrorCode(code) {
				return code
			}
		}
	}

	return 0
}

// IsTransientError returns true if the error looks like a temporary
// failure, i.e., a fresh run would likely succeed.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}

	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		if labeled.HasErrorLabel("NetworkError") || labeled.HasErrorLabel("TransientTransactionError") {
			return true
		}
	}

	if transientErrorCodes.Contains(GetErrorCode(err)) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "not master") || strings.Contains(msg, "connection closed")
}

var transientErrorCodes = mapset.NewSet(
	6,     // HostUnreachable
	7,     // HostNotFound
	89,    // NetworkTimeout
	91,    // ShutdownInProgress
	133,   // FailedToSatisfyReadPreference
	189,   // PrimarySteppedDown
	262,   // ExceededTimeLimit
	9001,  // SocketException
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11602, // InterruptedDueToReplStateChange
	13435, // NotPrimaryNoSecondaryOk
	13436, // NotPrimaryOrSecondary
)
