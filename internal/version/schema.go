package version

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// HistorySchemaVersion is stamped on every published history.
//
// Bump the major for:
//   - fingerprint encoding changes
//   - history entry field changes that older readers cannot ignore
//
// Bump the minor for additive fields.
const HistorySchemaVersion = "1.0.0"

// HistorySchemaConstraint selects the histories this build can read.
const HistorySchemaConstraint = "^1"

const (
	HistoryLabel       = "io.stagecache.history"
	HistorySchemaLabel = "io.stagecache.schema"
	FingerprintLabel   = "io.stagecache.fingerprint"
	StageLabel         = "io.stagecache.stage"
)

var ErrIncompatibleSchema = errors.New("incompatible history schema")

// CheckHistorySchema reports whether a history stamped with v can be read.
func CheckHistorySchema(v string) error {
	if v == "" {
		return fmt.Errorf("%w: missing schema version", ErrIncompatibleSchema)
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrIncompatibleSchema, v, err)
	}
	c, err := semver.NewConstraint(HistorySchemaConstraint)
	if err != nil {
		return err
	}
	if !c.Check(sv) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatibleSchema, v, HistorySchemaConstraint)
	}
	return nil
}
