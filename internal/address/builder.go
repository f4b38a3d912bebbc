// Package address derives canonical, geocoder-ready address strings from input rows.
package address

import (
	"strings"

	"github.com/UnknownOlympus/waypoint/internal/models"
	"golang.org/x/text/unicode/norm"
)

// Separator follows every street name in a canonical address.
const Separator = ", "

// DefaultRegion is appended to every non-empty address.
const DefaultRegion = "South Carolina, USA"

// Builder builds canonical addresses. The zero value uses DefaultRegion.
type Builder struct {
	region string
}

// NewBuilder returns a Builder that appends region to every address.
// An empty region falls back to DefaultRegion.
func NewBuilder(region string) Builder {
	return Builder{region: strings.TrimSpace(region)}
}

// Region returns the suffix appended to addresses.
func (b Builder) Region() string {
	if b.region == "" {
		return DefaultRegion
	}
	return b.region
}

// Build returns the canonical address for the row. When trim is set only the
// primary street is used. The empty string means the row has no usable address
// and must not be looked up.
func (b Builder) Build(row models.Row, trim bool) string {
	primary := clean(row.Primary)
	secondary := clean(row.Secondary)

	if primary == "" && secondary == "" {
		return ""
	}

	var sb strings.Builder
	if primary != "" {
		sb.WriteString(primary)
		sb.WriteString(Separator)
	}
	if !trim && secondary != "" {
		sb.WriteString(secondary)
		sb.WriteString(Separator)
	}
	if sb.Len() == 0 {
		// trimmed row without a primary street
		return ""
	}
	sb.WriteString(b.Region())

	return sb.String()
}

// HasBothStreets reports whether addr was built from both street names, which
// is what makes it eligible for the trimmed retry.
func (b Builder) HasBothStreets(addr string) bool {
	const streets = 2
	return strings.Count(addr, ",") == streets+strings.Count(b.Region(), ",")
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
