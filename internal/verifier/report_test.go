package verifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/10gen/migration-auditor/internal/testutil"
	"github.com/10gen/migration-auditor/internal/types"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

func (s *UnitTestSuite) report(runID runlog.RunID) string {
	var out strings.Builder
	err := NewReporter(s.store, DefaultLoggingDBName).Report(context.Background(), runID, &out)
	s.Require().NoError(err)

	return out.String()
}

func (s *UnitTestSuite) TestReportCountMismatch() {
	s.src.Insert("sales.orders", numberedDocs(10)...)
	s.src.Insert("sales.items", numberedDocs(3)...)
	s.src.Insert("hr.people", numberedDocs(3)...)
	s.dst.Insert("sales.orders", numberedDocs(9)...)
	s.dst.Insert("sales.items", numberedDocs(3)...)

	cfg := s.config()
	cfg.Whitelist = []string{"sales"}

	run, err := s.newVerifier().Verify(context.Background(), types.KindCount, cfg)
	s.Require().NoError(err)

	report := s.report(run.ID)

	s.Assert().Contains(report, run.ID.String())
	s.Assert().Contains(report, "(count)")
	s.Assert().Contains(report, "Finished:")
	s.Assert().Contains(report, "hr.people")
	s.Assert().Contains(report, "not whitelisted")
	s.Assert().Contains(report, "sales.orders")
	s.Assert().NotContains(report, "| sales.items", "matched namespaces are not listed as mismatches")
	s.Assert().Contains(
		report,
		fmt.Sprintf(`db.log.find({runId: %q, matched: false}).pretty()`, run.ID),
	)
	s.Assert().Contains(
		report,
		fmt.Sprintf(`db.log.find({runId: %q, skipped: false}).pretty()`, run.ID),
	)
	s.Assert().Contains(report, "Mismatches found.")
}

func (s *UnitTestSuite) TestReportSampleMismatchListsIDs() {
	s.src.Insert("sales.orders", numberedDocs(3)...)
	s.dst.Insert("sales.orders", bson.D{{"_id", int32(0)}, {"n", "changed"}})

	run, err := s.newVerifier().Verify(context.Background(), types.KindSample, s.config())
	s.Require().NoError(err)

	reporter := NewReporter(s.store, DefaultLoggingDBName)
	reporter.SetIDDisplaySize(2)

	var out strings.Builder
	s.Require().NoError(reporter.Report(context.Background(), run.ID, &out))

	report := out.String()
	s.Assert().Contains(report, "Sampled IDs")
	s.Assert().Contains(report, "and 1 more")
	s.Assert().Contains(report, "out.<db>.<collection>")
}

func (s *UnitTestSuite) TestReportCleanRun() {
	s.src.Insert("sales.orders", numberedDocs(2)...)
	s.dst.Insert("sales.orders", numberedDocs(2)...)

	run, err := s.newVerifier().Verify(context.Background(), types.KindMetadata, s.config())
	s.Require().NoError(err)

	report := s.report(run.ID)
	s.Assert().Contains(report, "No mismatches were found.")
	s.Assert().Contains(report, "No namespaces were skipped.")
	s.Assert().Contains(report, "No mismatches found.")
	s.Assert().NotContains(report, "matched: false")
}

func (s *UnitTestSuite) TestReportIncompleteRun() {
	s.src.Insert("sales.orders", numberedDocs(2)...)
	s.src.Fail["count:sales.orders"] = errors.New("network down")

	run, err := s.newVerifier().Verify(context.Background(), types.KindCount, s.config())
	s.Require().Error(err)

	report := s.report(run.ID)
	s.Assert().Contains(report, "no summary")
	s.Assert().Contains(report, "did not complete")
}

func (s *UnitTestSuite) TestReportUnknownRun() {
	var out strings.Builder
	err := NewReporter(testutil.NewMemoryStore(), DefaultLoggingDBName).Report(context.Background(), "nope", &out)
	s.Assert().ErrorContains(err, "not found")
}
