package synonym

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/shenwei356/xopen"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

// ErrAssemblyNotFound is returned by a Source that has no synonym table for
// the requested assembly.
var ErrAssemblyNotFound = errors.New("assembly not found")

// Source loads the synonym table of an assembly.
type Source interface {
	Load(ctx context.Context, assembly string) ([]model.SynonymEntry, error)
}

// SourceError is returned by Load for any failure to obtain the synonym
// table of an assembly: a missing, unreadable, or malformed report.
type SourceError struct {
	Assembly string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("loading synonyms for %s: %v", e.Assembly, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Load fetches the synonym table of assembly from src and builds a Resolver.
// Every failure is a *SourceError.
func Load(ctx context.Context, src Source, assembly string) (*Resolver, error) {
	entries, err := src.Load(ctx, assembly)
	if err != nil {
		return nil, &SourceError{Assembly: assembly, Err: err}
	}
	if len(entries) == 0 {
		return nil, &SourceError{Assembly: assembly, Err: fmt.Errorf("%w: synonym table is empty", ErrAssemblyNotFound)}
	}
	return NewResolver(entries), nil
}

// StaticSource serves synonym tables held in memory, keyed by assembly.
type StaticSource map[string][]model.SynonymEntry

// Load returns the entries registered for assembly.
func (s StaticSource) Load(_ context.Context, assembly string) ([]model.SynonymEntry, error) {
	entries, ok := s[assembly]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssemblyNotFound, assembly)
	}
	return entries, nil
}

// AccessionPlaceholder is replaced by the assembly accession in a report
// location template.
const AccessionPlaceholder = "{accession}"

// AssemblyReportSource reads NCBI assembly reports. Location is a template
// containing {accession}; it may name a local file, a gzip/xz/zstd
// compressed file, or an http(s) URL.
type AssemblyReportSource struct {
	Location string
	Logger   *slog.Logger
}

// NewAssemblyReportSource creates an AssemblyReportSource. The location must
// contain the {accession} placeholder.
func NewAssemblyReportSource(location string, logger *slog.Logger) (*AssemblyReportSource, error) {
	if !strings.Contains(location, AccessionPlaceholder) {
		return nil, fmt.Errorf("report location %q must contain %s", location, AccessionPlaceholder)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AssemblyReportSource{Location: location, Logger: logger}, nil
}

// ReportLocation returns the resolved location of the report for assembly.
func (s *AssemblyReportSource) ReportLocation(assembly string) string {
	return strings.ReplaceAll(s.Location, AccessionPlaceholder, assembly)
}

// Load opens and parses the assembly report of assembly.
func (s *AssemblyReportSource) Load(ctx context.Context, assembly string) ([]model.SynonymEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc := s.ReportLocation(assembly)
	if !isURL(loc) {
		if _, err := os.Stat(loc); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no assembly report at %s", ErrAssemblyNotFound, loc)
		}
	}
	r, err := xopen.Ropen(loc)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no assembly report at %s", ErrAssemblyNotFound, loc)
		}
		return nil, fmt.Errorf("opening assembly report %s: %w", loc, err)
	}
	defer r.Close()

	entries, err := ParseAssemblyReport(r)
	if err != nil {
		return nil, fmt.Errorf("parsing assembly report %s: %w", loc, err)
	}
	s.Logger.Info("assembly report loaded",
		"assembly", assembly,
		"location", loc,
		"sequences", len(entries),
	)
	return entries, nil
}

func isURL(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") || strings.HasPrefix(loc, "ftp://")
}

// Assembly report column positions.
const (
	colSequenceName = iota
	colSequenceRole
	colAssignedMolecule
	colAssignedMoleculeType
	colGenbank
	colRelationship
	colRefSeq
	colAssemblyUnit
	colSequenceLength
	colUCSC

	reportColumns
)

const (
	notAvailable          = "na"
	roleAssembledMolecule = "assembled-molecule"
	relationshipIdentical = "="
)

// ParseAssemblyReport parses an NCBI assembly report: tab separated, comment
// lines starting with '#', and "na" for absent values. Sequences without a
// GenBank accession are skipped since they have no canonical form. The
// assigned molecule is only indexed for assembled molecules, because
// unlocalized scaffolds carry the assigned molecule of their chromosome.
func ParseAssemblyReport(r io.Reader) ([]model.SynonymEntry, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var entries []model.SynonymEntry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < colUCSC {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected at least %d columns, got %d", line, colUCSC, len(rec))
		}
		for len(rec) < reportColumns {
			rec = append(rec, notAvailable)
		}

		genbank := value(rec[colGenbank])
		if genbank == "" {
			continue
		}
		e := model.SynonymEntry{
			Genbank:                  genbank,
			Name:                     value(rec[colSequenceName]),
			UCSC:                     value(rec[colUCSC]),
			RefSeq:                   value(rec[colRefSeq]),
			RefSeqIdenticalToGenbank: strings.TrimSpace(rec[colRelationship]) == relationshipIdentical,
		}
		if strings.TrimSpace(rec[colSequenceRole]) == roleAssembledMolecule {
			e.AssignedMolecule = value(rec[colAssignedMolecule])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func value(s string) string {
	s = strings.TrimSpace(s)
	if s == notAvailable {
		return ""
	}
	return s
}
