package runlog

import (
	"time"

	"github.com/10gen/migration-auditor/internal/canonical"
	"github.com/10gen/migration-auditor/internal/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// RunID identifies a Run. It is globally unique.
type RunID string

// NewRunID generates a fresh RunID.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

func (id RunID) String() string {
	return string(id)
}

// Run is one execution of one verification strategy.
//
// End and Summary are nil until the run completes. A Run whose Summary
// is nil either is still going or failed partway; its log entries are
// still valid as far as they go.
type Run struct {
	ID      RunID                  `bson:"_id" json:"id"`
	Kind    types.VerificationKind `bson:"verificationType" json:"verificationType"`
	Start   time.Time              `bson:"start" json:"start"`
	End     *time.Time             `bson:"end,omitempty" json:"end,omitempty"`
	Summary *Summary               `bson:"summary,omitempty" json:"summary,omitempty"`
}

// IsComplete indicates whether the run finished.
func (r Run) IsComplete() bool {
	return r.Summary != nil
}

// Summary tallies a run’s outcomes.
type Summary struct {
	DB   DBSummary   `bson:"db" json:"db"`
	Coll CollSummary `bson:"coll" json:"coll"`
}

// DBSummary lists the databases that a run processed & skipped.
type DBSummary struct {
	Processed []string `bson:"processed" json:"processed"`
	Skipped   []string `bson:"skipped" json:"skipped"`
}

// CollSummary counts a run’s collections by outcome.
type CollSummary struct {
	Processed  int64 `bson:"processed" json:"processed"`
	Skipped    int64 `bson:"skipped" json:"skipped"`
	Matches    int64 `bson:"matches" json:"matches"`
	Mismatches int64 `bson:"mismatches" json:"mismatches"`
}

// Payload is the kind-specific part of a LogEntry. Its implementations
// are CountResult, MetadataResult, and SampleResult.
type Payload interface {
	Kind() types.VerificationKind
	Matched() bool

	appendFields(doc bson.D) bson.D
}

// CountResult is the payload of a count verification.
type CountResult struct {
	SrcCount int64
	DstCount int64
}

func (CountResult) Kind() types.VerificationKind {
	return types.KindCount
}

func (r CountResult) Matched() bool {
	return r.SrcCount == r.DstCount
}

func (r CountResult) appendFields(doc bson.D) bson.D {
	return append(
		doc,
		bson.E{"srcCount", r.SrcCount},
		bson.E{"dstCount", r.DstCount},
	)
}

// MetadataResult is the payload of a metadata verification. Both infos
// are canonical.
type MetadataResult struct {
	SrcInfo canonical.Mapping
	DstInfo canonical.Mapping
}

func (MetadataResult) Kind() types.VerificationKind {
	return types.KindMetadata
}

func (r MetadataResult) Matched() bool {
	return canonical.Equal(r.SrcInfo, r.DstInfo)
}

func (r MetadataResult) appendFields(doc bson.D) bson.D {
	return append(
		doc,
		bson.E{"srcInfo", canonical.ToDocument(r.SrcInfo)},
		bson.E{"dstInfo", canonical.ToDocument(r.DstInfo)},
	)
}

// SampleResult is the payload of a sample verification. IDs is set only
// for mismatches.
type SampleResult struct {
	NumDocs int
	SrcHash string
	DstHash string
	IDs     []bson.RawValue
}

func (SampleResult) Kind() types.VerificationKind {
	return types.KindSample
}

func (r SampleResult) Matched() bool {
	return r.SrcHash == r.DstHash
}

func (r SampleResult) appendFields(doc bson.D) bson.D {
	doc = append(
		doc,
		bson.E{"noDocs", r.NumDocs},
		bson.E{"srcMd5", r.SrcHash},
		bson.E{"dstMd5", r.DstHash},
	)

	if len(r.IDs) > 0 {
		doc = append(doc, bson.E{"ids", r.IDs})
	}

	return doc
}

// LogEntry records the outcome for one namespace in one run. Payload is
// nil if (and only if) Skipped is true.
type LogEntry struct {
	RunID     RunID
	Namespace string
	Skipped   bool
	Reason    string
	Kind      types.VerificationKind
	Start     time.Time
	End       time.Time
	Payload   Payload
}

// Matched indicates whether a processed namespace matched. It is false
// for skipped entries, for which a match is meaningless.
func (e LogEntry) Matched() bool {
	return e.Payload != nil && e.Payload.Matched()
}

var _ bson.Marshaler = LogEntry{}
var _ bson.Unmarshaler = &LogEntry{}

// MarshalBSON implements bson.Marshaler. The payload’s fields are written
// at the top level, next to the common ones.
func (e LogEntry) MarshalBSON() ([]byte, error) {
	doc := bson.D{
		{"runId", e.RunID},
		{"ns", e.Namespace},
		{"skipped", e.Skipped},
		{"verificationType", e.Kind},
		{"start", e.Start},
		{"end", e.End},
	}

	if e.Skipped {
		doc = append(doc, bson.E{"reason", e.Reason})
	} else if e.Payload != nil {
		doc = e.Payload.appendFields(doc)
		doc = append(doc, bson.E{"matched", e.Payload.Matched()})
	}

	return bson.Marshal(doc)
}

type persistedLogEntry struct {
	RunID     RunID                  `bson:"runId"`
	Namespace string                 `bson:"ns"`
	Skipped   bool                   `bson:"skipped"`
	Reason    string                 `bson:"reason"`
	Kind      types.VerificationKind `bson:"verificationType"`
	Start     time.Time              `bson:"start"`
	End       time.Time              `bson:"end"`

	SrcCount int64 `bson:"srcCount"`
	DstCount int64 `bson:"dstCount"`

	SrcInfo bson.Raw `bson:"srcInfo"`
	DstInfo bson.Raw `bson:"dstInfo"`

	NumDocs int             `bson:"noDocs"`
	SrcMd5  string          `bson:"srcMd5"`
	DstMd5  string          `bson:"dstMd5"`
	IDs     []bson.RawValue `bson:"ids"`
}

// UnmarshalBSON implements bson.Unmarshaler.
func (e *LogEntry) UnmarshalBSON(data []byte) error {
	var p persistedLogEntry
	if err := bson.Unmarshal(data, &p); err != nil {
		return errors.Wrap(err, "failed to decode log entry")
	}

	*e = LogEntry{
		RunID:     p.RunID,
		Namespace: p.Namespace,
		Skipped:   p.Skipped,
		Reason:    p.Reason,
		Kind:      p.Kind,
		Start:     p.Start,
		End:       p.End,
	}

	if p.Skipped {
		return nil
	}

	switch p.Kind {
	case types.KindCount:
		e.Payload = CountResult{SrcCount: p.SrcCount, DstCount: p.DstCount}

	case types.KindMetadata:
		srcInfo, err := decodeInfo(p.SrcInfo)
		if err != nil {
			return errors.Wrapf(err, "failed to decode %#q’s source info", p.Namespace)
		}

		dstInfo, err := decodeInfo(p.DstInfo)
		if err != nil {
			return errors.Wrapf(err, "failed to decode %#q’s destination info", p.Namespace)
		}

		e.Payload = MetadataResult{SrcInfo: srcInfo, DstInfo: dstInfo}

	case types.KindSample:
		e.Payload = SampleResult{
			NumDocs: p.NumDocs,
			SrcHash: p.SrcMd5,
			DstHash: p.DstMd5,
			IDs:     p.IDs,
		}

	default:
		return errors.Errorf("log entry for %#q has unknown verification type %#q", p.Namespace, p.Kind)
	}

	return nil
}

func decodeInfo(raw bson.Raw) (canonical.Mapping, error) {
	if raw == nil {
		return canonical.Mapping{}, nil
	}

	return canonical.FromBSON(raw)
}
