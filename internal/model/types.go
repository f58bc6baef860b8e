// Package model defines the core data types that flow through a rekeying
// run: VariantRecord, SynonymEntry, Summary, RunReport, and their
// supporting types.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// Severity represents the severity level of a RunReport.
type Severity string

const (
	// SeverityCritical indicates a run that aborted on a fatal condition.
	SeverityCritical Severity = "critical"
	// SeverityWarning indicates a run that completed but whose counts do
	// not reconcile.
	SeverityWarning Severity = "warning"
	// SeverityInfo indicates a clean, reconciled run.
	SeverityInfo Severity = "info"
)

// ValidSeverities is the set of all valid Severity values.
var ValidSeverities = map[Severity]bool{
	SeverityCritical: true,
	SeverityWarning:  true,
	SeverityInfo:     true,
}

// IsValid reports whether s is a recognized severity value.
func (s Severity) IsValid() bool {
	return ValidSeverities[s]
}

// VariantRecord is one submitted variant observation. Its ID is the content
// hash of the six identity fields (see package identity). Fields that are
// not part of the identity are kept in Extra so that a rekeyed copy carries
// them through unchanged.
type VariantRecord struct {
	// ID is the 40 character uppercase hex SHA-1 content hash.
	ID string `bson:"_id" json:"id"`
	// SequenceAccession is the assembly the variant is reported against.
	SequenceAccession string `bson:"seq" json:"seq"`
	// Study is the submitting study accession.
	Study string `bson:"study" json:"study"`
	// Contig is the chromosome or scaffold name as submitted.
	Contig string `bson:"contig" json:"contig"`
	// Start is the 1-based position.
	Start int64 `bson:"start" json:"start"`
	// ReferenceAllele is the reference allele.
	ReferenceAllele string `bson:"ref" json:"ref"`
	// AlternateAllele is the alternate allele.
	AlternateAllele string `bson:"alt" json:"alt"`
	// Extra holds every other document field.
	Extra bson.M `bson:",inline" json:"-"`
}

// Clone returns a copy of r. The Extra map is copied one level deep, which
// is sufficient because the rekeying process never mutates nested values.
func (r *VariantRecord) Clone() *VariantRecord {
	c := *r
	if r.Extra != nil {
		c.Extra = make(bson.M, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// String returns a compact human-readable form used in logs and errors.
func (r *VariantRecord) String() string {
	return fmt.Sprintf("%s[%s %s %s:%d %s>%s]",
		r.ID, r.SequenceAccession, r.Study, r.Contig, r.Start, r.ReferenceAllele, r.AlternateAllele)
}

// SynonymEntry is one sequence of an assembly with all its known spellings.
// Genbank is the canonical form; any of the other names may be empty.
type SynonymEntry struct {
	Genbank          string
	Name             string
	AssignedMolecule string
	UCSC             string
	RefSeq           string
	// RefSeqIdenticalToGenbank is true when the RefSeq and GenBank sequences
	// are declared identical, which is the only case a RefSeq name may be
	// trusted to identify the GenBank sequence.
	RefSeqIdenticalToGenbank bool
}

// Summary holds the counts a run reports on completion.
type Summary struct {
	// Checked is the number of records read and hash-verified.
	Checked int `json:"checked"`
	// AlreadyCanonical is the number of records already using a GenBank contig.
	AlreadyCanonical int `json:"already_canonical"`
	// Inserted is the number of rekeyed records the store reported inserted.
	Inserted int `json:"inserted"`
	// Deleted is the number of original records the store reported deleted.
	Deleted int `json:"deleted"`
	// Staged is the number of insert/delete pairs prepared during a dry run.
	Staged int `json:"staged,omitempty"`
}

// Rewritten returns the number of records that needed a new key.
func (s Summary) Rewritten() int {
	return s.Checked - s.AlreadyCanonical
}

// Reconciled reports whether inserted == deleted == checked - already canonical.
func (s Summary) Reconciled() bool {
	return s.Inserted == s.Deleted && s.Inserted == s.Rewritten()
}

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeDryRun    Outcome = "dry_run"
)

// RunReport describes one run of the rekeying engine. It is recorded in the
// ledger and delivered to every configured sink.
type RunReport struct {
	// RunID is a unique identifier for the run (UUID v4).
	RunID      string    `json:"run_id"`
	Assembly   string    `json:"assembly"`
	Studies    []string  `json:"studies"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Summary    Summary   `json:"summary"`
	Outcome    Outcome   `json:"outcome"`
	// FailureKind classifies a failed run (e.g., "id_mismatch"). Empty on success.
	FailureKind string `json:"failure_kind,omitempty"`
	// Error is the redacted failure message. Empty on success.
	Error    string   `json:"error,omitempty"`
	Severity Severity `json:"severity"`
}

// NewRunReport creates a RunReport with a generated run ID and the current
// time as its start.
func NewRunReport(assembly string, studies []string) (*RunReport, error) {
	if assembly == "" {
		return nil, fmt.Errorf("assembly must not be empty")
	}
	if len(studies) == 0 {
		return nil, fmt.Errorf("studies must not be empty")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generating run id: %w", err)
	}
	return &RunReport{
		RunID:     id.String(),
		Assembly:  assembly,
		Studies:   append([]string(nil), studies...),
		StartedAt: time.Now().UTC(),
	}, nil
}

// Complete fills in the outcome and severity of the report from the run's
// summary and error. kind is the failure classification of err.
func (r *RunReport) Complete(summary Summary, dryRun bool, err error, kind string) {
	r.FinishedAt = time.Now().UTC()
	r.Summary = summary
	switch {
	case err != nil:
		r.Outcome = OutcomeFailed
		r.FailureKind = kind
		r.Error = err.Error()
		r.Severity = SeverityCritical
	case dryRun:
		r.Outcome = OutcomeDryRun
		r.Severity = SeverityInfo
	case !summary.Reconciled():
		r.Outcome = OutcomeSucceeded
		r.Severity = SeverityWarning
	default:
		r.Outcome = OutcomeSucceeded
		r.Severity = SeverityInfo
	}
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StudyList returns the studies joined with commas.
func (r *RunReport) StudyList() string {
	return strings.Join(r.Studies, ",")
}
