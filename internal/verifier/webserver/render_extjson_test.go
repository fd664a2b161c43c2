package webserver

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
)

type UnitTestSuite struct {
	suite.Suite
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, &UnitTestSuite{})
}

func (s *UnitTestSuite) TestRender() {
	w := httptest.NewRecorder()

	err := ExtJSON{Data: bson.D{{"n", int64(1) << 60}, {"s", "x"}}}.Render(w)
	s.Require().NoError(err)

	s.Assert().Equal("application/json; charset=utf-8", w.Header().Get("Content-Type"))
	s.Assert().JSONEq(`{"n": 1152921504606846976, "s": "x"}`, w.Body.String())
}

func (s *UnitTestSuite) TestRenderFailure() {
	w := httptest.NewRecorder()

	err := ExtJSON{Data: 42}.Render(w)
	s.Assert().Error(err, "a bare number is not a document")
}
