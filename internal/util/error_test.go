package util

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
)

type UnitTestSuite struct {
	suite.Suite
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, &UnitTestSuite{})
}

func (suite *UnitTestSuite) TestIsTransientError() {
	type testCase struct {
		err    error
		expect bool
	}
	testCases := []testCase{
		{errors.New("Not transient"), false},
		{context.Canceled, false},
		{mongo.CommandError{Code: 6}, true},
		{mongo.CommandError{Code: 42}, false},
		{mongo.CommandError{Code: 0}, false},
		{mongo.CommandError{Code: 0, Message: "not master"}, true},
		{mongo.CommandError{Code: 1234567, Labels: []string{"NetworkError"}}, true},
		{mongo.CommandError{Code: 1234567, Labels: []string{"SomeNotTransientThing"}}, false},
		{errors.Wrap(mongo.CommandError{Code: 189}, "wrapped"), true},
	}
	for _, c := range testCases {
		suite.Assert().Equal(c.expect, IsTransientError(c.err), "%v", c.err)
	}
}

func (suite *UnitTestSuite) TestErrorClassification() {
	nsNotFound := errors.Wrap(mongo.CommandError{Code: NamespaceNotFound}, "drop")
	suite.Assert().True(IsNamespaceNotFoundError(nsNotFound))
	suite.Assert().False(IsAuthenticationError(nsNotFound))

	authFailed := mongo.CommandError{Code: AuthenticationFailed, Message: "Authentication failed."}
	suite.Assert().True(IsAuthenticationError(authFailed))

	wrapped := errors.Wrap(AuthenticationError{Username: "admin", Cause: authFailed}, "connect")
	suite.Assert().True(IsAuthenticationError(wrapped))
	suite.Assert().Contains(wrapped.Error(), "admin")

	confErr := errors.Wrap(ConfigurationError{Setting: "dbWhitelist", Reason: "empty"}, "setup")
	suite.Assert().True(IsConfigurationError(confErr))
	suite.Assert().Equal("setup: invalid dbWhitelist: empty", confErr.Error())
	suite.Assert().False(IsConfigurationError(authFailed))
}
