package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/10gen/migration-auditor/internal/logger"
	"github.com/10gen/migration-auditor/internal/types"
	"github.com/gin-gonic/gin"
)

func (s *UnitTestSuite) serve(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	s.Require().NoError(err)

	router.ServeHTTP(w, req)

	return w
}

func (s *UnitTestSuite) TestWebServerEndpoints() {
	s.src.Insert("sales.orders", numberedDocs(4)...)
	s.src.Insert("sales.items", numberedDocs(4)...)
	s.src.CreateCollection("sales.system.views", nil)
	s.dst.Insert("sales.orders", numberedDocs(4)...)
	s.dst.Insert("sales.items", numberedDocs(2)...)

	run, err := s.newVerifier().Verify(context.Background(), types.KindCount, s.config())
	s.Require().NoError(err)

	router := NewWebServer(DefaultServerPort, s.store, logger.NewDebugLogger()).setupRouter()

	w := s.serve(router, "/api/v1/runs/"+run.ID.String())
	s.Require().Equal(http.StatusOK, w.Code)
	s.Assert().NotEmpty(w.Header().Get("Trace-Id"))

	var runResp struct {
		Run struct {
			ID      string `json:"id"`
			Kind    string `json:"verificationType"`
			Summary struct {
				Coll struct {
					Processed  int `json:"processed"`
					Mismatches int `json:"mismatches"`
				} `json:"coll"`
			} `json:"summary"`
		} `json:"run"`
		Complete bool `json:"complete"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &runResp))
	s.Assert().Equal(run.ID.String(), runResp.Run.ID)
	s.Assert().Equal("count", runResp.Run.Kind)
	s.Assert().True(runResp.Complete)
	s.Assert().Equal(2, runResp.Run.Summary.Coll.Processed)
	s.Assert().Equal(1, runResp.Run.Summary.Coll.Mismatches)

	type entriesResp struct {
		RunID   string `json:"runId"`
		Entries []struct {
			NS       string `json:"ns"`
			Skipped  bool   `json:"skipped"`
			Reason   string `json:"reason"`
			SrcCount int64  `json:"srcCount"`
			DstCount int64  `json:"dstCount"`
		} `json:"entries"`
	}

	w = s.serve(router, "/api/v1/runs/"+run.ID.String()+"/mismatches")
	s.Require().Equal(http.StatusOK, w.Code)

	var mismatches entriesResp
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &mismatches))
	s.Require().Len(mismatches.Entries, 1)
	s.Assert().Equal("sales.items", mismatches.Entries[0].NS)
	s.Assert().EqualValues(4, mismatches.Entries[0].SrcCount)
	s.Assert().EqualValues(2, mismatches.Entries[0].DstCount)

	w = s.serve(router, "/api/v1/runs/"+run.ID.String()+"/skipped")
	s.Require().Equal(http.StatusOK, w.Code)

	var skipped entriesResp
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &skipped))
	s.Require().Len(skipped.Entries, 1)
	s.Assert().Equal("sales.system.views", skipped.Entries[0].NS)
	s.Assert().Equal("system collection", skipped.Entries[0].Reason)

	w = s.serve(router, "/api/v1/runs/"+run.ID.String()+"/log?matched=true")
	s.Require().Equal(http.StatusOK, w.Code)

	var matched entriesResp
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &matched))
	s.Require().Len(matched.Entries, 1)
	s.Assert().Equal("sales.orders", matched.Entries[0].NS)

	w = s.serve(router, "/api/v1/runs/"+run.ID.String()+"/log?ns=nope.nope")
	s.Require().Equal(http.StatusOK, w.Code)

	var none entriesResp
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &none))
	s.Assert().NotNil(none.Entries)
	s.Assert().Empty(none.Entries)

	w = s.serve(router, "/api/v1/runs/"+run.ID.String()+"/log?matched=maybe")
	s.Assert().Equal(http.StatusBadRequest, w.Code)

	w = s.serve(router, "/api/v1/runs/no-such-run")
	s.Assert().Equal(http.StatusNotFound, w.Code)
}
