// Package identity computes and verifies the content-addressed key of a
// variant record. The key is the uppercase hex SHA-1 of the identity fields
// joined with "_" in a fixed order:
//
//	seq _ study _ contig _ start _ ref _ alt
//
// The same function is used to verify a stored key and to compute the key
// of a rekeyed record, so the field order and separator must never change.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

// Separator joins the identity fields before hashing.
const Separator = "_"

// IDMismatchError is returned when a record's stored key is not the hash of
// its own fields.
type IDMismatchError struct {
	Stored   string
	Computed string
}

func (e *IDMismatchError) Error() string {
	return fmt.Sprintf("stored id %s does not match computed id %s", e.Stored, e.Computed)
}

// Fields returns the identity fields of r in hashing order.
func Fields(r *model.VariantRecord) []string {
	return []string{
		r.SequenceAccession,
		r.Study,
		r.Contig,
		strconv.FormatInt(r.Start, 10),
		r.ReferenceAllele,
		r.AlternateAllele,
	}
}

// ID returns the content hash of r. It ignores r.ID.
func ID(r *model.VariantRecord) string {
	sum := sha1.Sum([]byte(strings.Join(Fields(r), Separator)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify returns an *IDMismatchError if r.ID is not the hash of r's fields.
func Verify(r *model.VariantRecord) error {
	computed := ID(r)
	if r.ID != computed {
		return &IDMismatchError{Stored: r.ID, Computed: computed}
	}
	return nil
}

// Rekey returns a copy of r with its contig replaced and its ID recomputed.
// r itself is not modified.
func Rekey(r *model.VariantRecord, contig string) *model.VariantRecord {
	c := r.Clone()
	c.Contig = contig
	c.ID = ID(c)
	return c
}
