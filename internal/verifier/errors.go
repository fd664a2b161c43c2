package verifier

import "github.com/10gen/migration-auditor/internal/util"

// ConfigurationError means the run’s configuration is invalid. Verify
// returns it before recording anything.
type ConfigurationError = util.ConfigurationError

// AuthenticationError means the destination rejected the credential.
// Verify returns it after the run is recorded, so that run never gets a
// summary.
type AuthenticationError = util.AuthenticationError
