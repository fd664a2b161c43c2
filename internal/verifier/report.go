package verifier

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/10gen/migration-auditor/internal/canonical"
	"github.com/10gen/migration-auditor/internal/reportutils"
	"github.com/10gen/migration-auditor/internal/types"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	okSymbol    = "\u2705" // white heavy check mark
	infoSymbol  = "\u24d8" // circled Latin small letter I
	notOkSymbol = "\u2757" // heavy exclamation mark symbol

	// DefaultMismatchDisplaySize is how many sampled identifiers a
	// report shows per mismatched namespace.
	DefaultMismatchDisplaySize = 20
)

var timeFormat = time.RFC3339

// Reporter renders runs from the logging store as text.
type Reporter struct {
	store     runlog.Store
	loggingDB string

	idDisplaySize int
	now           func() time.Time
}

// NewReporter returns a Reporter that reads from the given store, which
// lives in the named logging database.
func NewReporter(store runlog.Store, loggingDB string) *Reporter {
	return &Reporter{
		store:         store,
		loggingDB:     loggingDB,
		idDisplaySize: DefaultMismatchDisplaySize,
		now:           time.Now,
	}
}

// SetIDDisplaySize sets how many sampled identifiers the report shows per
// mismatched namespace.
func (r *Reporter) SetIDDisplaySize(size int) {
	r.idDisplaySize = size
}

// Report writes the report for the given run: the run itself with its
// summary, the skipped namespaces, the mismatches, and the queries that
// show the underlying log entries.
func (r *Reporter) Report(ctx context.Context, runID runlog.RunID, w io.Writer) error {
	maybeRun, err := r.store.FindRun(ctx, runID)
	if err != nil {
		return err
	}

	run, found := maybeRun.Get()
	if !found {
		return errors.Errorf("run %s not found in %#q", runID, r.loggingDB)
	}

	skipped, err := r.store.FindLogEntries(ctx, runID, runlog.LogFilter{Skipped: mo.Some(true)})
	if err != nil {
		return errors.Wrapf(err, "failed to read run %s’s skipped namespaces", runID)
	}

	mismatches, err := r.store.FindLogEntries(ctx, runID, runlog.LogFilter{Matched: mo.Some(false)})
	if err != nil {
		return errors.Wrapf(err, "failed to read run %s’s mismatches", runID)
	}

	strBuilder := &strings.Builder{}

	r.writeRun(strBuilder, run)
	writeSkipped(strBuilder, skipped)
	r.writeMismatches(strBuilder, run.Kind, mismatches)
	r.writeHints(strBuilder, run, len(mismatches) > 0)
	writeStatus(strBuilder, run, len(mismatches) > 0)

	_, err = io.WriteString(w, strBuilder.String())

	return errors.Wrap(err, "failed to write report")
}

func (r *Reporter) writeRun(strBuilder *strings.Builder, run runlog.Run) {
	fmt.Fprintf(strBuilder, "Run %s (%s)\n", run.ID, run.Kind)
	fmt.Fprintf(
		strBuilder,
		"Started:  %s (%s)\n",
		run.Start.Format(timeFormat),
		humanize.RelTime(run.Start, r.now(), "ago", "from now"),
	)

	if !run.IsComplete() {
		fmt.Fprintf(
			strBuilder,
			"\n%s This run has no summary. It either is still in progress or was aborted; its log entries are valid as far as they go.\n\n",
			notOkSymbol,
		)
		return
	}

	end := lo.FromPtr(run.End)
	fmt.Fprintf(
		strBuilder,
		"Finished: %s (took %s)\n\n",
		end.Format(timeFormat),
		reportutils.DurationToHMS(end.Sub(run.Start)),
	)

	summary := *run.Summary

	fmt.Fprintf(strBuilder, "Databases processed: %s\n", reportutils.FmtList(summary.DB.Processed, "(none)"))
	fmt.Fprintf(strBuilder, "Databases skipped:   %s\n\n", reportutils.FmtList(summary.DB.Skipped, "(none)"))

	coll := summary.Coll

	table := tablewriter.NewWriter(strBuilder)
	table.SetHeader([]string{"Collections", "Count", "Percent"})
	table.Append([]string{"Processed", humanize.Comma(coll.Processed), reportutils.FmtPercent(coll.Processed, coll.Processed+coll.Skipped)})
	table.Append([]string{"Skipped", humanize.Comma(coll.Skipped), reportutils.FmtPercent(coll.Skipped, coll.Processed+coll.Skipped)})
	table.Append([]string{"Matched", humanize.Comma(coll.Matches), reportutils.FmtPercent(coll.Matches, coll.Processed)})
	table.Append([]string{"Mismatched", humanize.Comma(coll.Mismatches), reportutils.FmtPercent(coll.Mismatches, coll.Processed)})
	table.Render()
	strBuilder.WriteString("\n")
}

func writeSkipped(strBuilder *strings.Builder, skipped []runlog.LogEntry) {
	if len(skipped) == 0 {
		strBuilder.WriteString("No namespaces were skipped.\n\n")
		return
	}

	strBuilder.WriteString("Skipped namespaces:\n")

	table := tablewriter.NewWriter(strBuilder)
	table.SetHeader([]string{"Namespace", "Reason"})
	for _, e := range skipped {
		table.Append([]string{e.Namespace, e.Reason})
	}
	table.Render()
	strBuilder.WriteString("\n")
}

func (r *Reporter) writeMismatches(
	strBuilder *strings.Builder,
	kind types.VerificationKind,
	mismatches []runlog.LogEntry,
) {
	if len(mismatches) == 0 {
		strBuilder.WriteString("No mismatches were found.\n\n")
		return
	}

	strBuilder.WriteString("Mismatches:\n")

	table := tablewriter.NewWriter(strBuilder)
	table.SetAutoWrapText(false)

	switch kind {
	case types.KindCount:
		table.SetHeader([]string{"Namespace", "Source Count", "Destination Count"})
	case types.KindMetadata:
		table.SetHeader([]string{"Namespace", "Source Info", "Destination Info"})
	case types.KindSample:
		table.SetHeader([]string{"Namespace", "Sampled", "Source Hash", "Destination Hash", "Sampled IDs"})
	}

	for _, e := range mismatches {
		switch p := e.Payload.(type) {
		case runlog.CountResult:
			table.Append([]string{
				e.Namespace,
				humanize.Comma(p.SrcCount),
				humanize.Comma(p.DstCount),
			})
		case runlog.MetadataResult:
			table.Append([]string{
				e.Namespace,
				fmtInfo(p.SrcInfo),
				fmtInfo(p.DstInfo),
			})
		case runlog.SampleResult:
			table.Append([]string{
				e.Namespace,
				humanize.Comma(int64(p.NumDocs)),
				p.SrcHash,
				p.DstHash,
				r.fmtIDs(p.IDs),
			})
		}
	}

	table.Render()
	strBuilder.WriteString("\n")
}

func fmtInfo(info canonical.Mapping) string {
	extJSON, err := bson.MarshalExtJSON(canonical.ToDocument(info), false, false)
	if err != nil {
		return fmt.Sprintf("(unprintable: %v)", err)
	}

	return string(extJSON)
}

func (r *Reporter) fmtIDs(ids []bson.RawValue) string {
	shown := lo.Subset(ids, 0, types.ToNumericTypeOf(r.idDisplaySize, uint(0)))

	strs := lo.Map(shown, func(id bson.RawValue, _ int) string {
		return id.String()
	})

	if len(ids) > len(shown) {
		strs = append(strs, fmt.Sprintf("… and %d more", len(ids)-len(shown)))
	}

	return strings.Join(strs, "\n")
}

func (r *Reporter) writeHints(strBuilder *strings.Builder, run runlog.Run, hasMismatches bool) {
	strBuilder.WriteString("To show details of all the processed collections, run the following on the source cluster:\n")
	fmt.Fprintf(strBuilder, "   use %s\n", r.loggingDB)
	fmt.Fprintf(strBuilder, "   db.%s.find({runId: %q, skipped: false}).pretty()\n", runlog.LogCollName, run.ID)

	if hasMismatches {
		strBuilder.WriteString("To show all the mismatched collections, run the following on the source cluster:\n")
		fmt.Fprintf(strBuilder, "   use %s\n", r.loggingDB)
		fmt.Fprintf(strBuilder, "   db.%s.find({runId: %q, matched: false}).pretty()\n", runlog.LogCollName, run.ID)

		if run.Kind == types.KindSample {
			fmt.Fprintf(
				strBuilder,
				"Staging collections for mismatched namespaces (out.<db>.<collection>) remain in %#q on both clusters.\n",
				r.loggingDB,
			)
		}
	}

	strBuilder.WriteString("\n")
}

func writeStatus(strBuilder *strings.Builder, run runlog.Run, hasMismatches bool) {
	switch {
	case hasMismatches:
		strBuilder.WriteString(notOkSymbol + " Mismatches found.\n")
	case !run.IsComplete():
		strBuilder.WriteString(infoSymbol + " No mismatches found, but the run did not complete.\n")
	default:
		strBuilder.WriteString(okSymbol + " No mismatches found.\n")
	}
}
