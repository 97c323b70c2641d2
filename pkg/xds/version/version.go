// Package version enforces a minimum supported proxy version on stream
// start, as an additive safety check ahead of the ACK/NACK state
// machine proper.
package version

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	goversion "github.com/hashicorp/go-version"
)

// MinSupported is the floor below which a proxy is refused. Unset
// (nil) disables the check entirely.
type MinSupported struct {
	constraint goversion.Constraints
}

// NewMinSupported parses a constraint string such as ">= 1.18.0".
func NewMinSupported(constraint string) (*MinSupported, error) {
	c, err := goversion.NewConstraint(constraint)
	if err != nil {
		return nil, err
	}
	return &MinSupported{constraint: c}, nil
}

// Check validates a node ID and a build-version string together,
// combining both failures into one error when they co-occur so an
// operator sees the whole picture from one stream rejection rather than
// chasing them one at a time.
func (m *MinSupported) Check(nodeID, buildVersion string) error {
	var result *multierror.Error

	if nodeID == "" {
		result = multierror.Append(result, fmt.Errorf("missing node id"))
	}

	if m != nil && buildVersion != "" {
		v, err := goversion.NewVersion(buildVersion)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("unparseable proxy version %q: %w", buildVersion, err))
		} else if !m.constraint.Check(v) {
			result = multierror.Append(result, fmt.Errorf("proxy version %s does not satisfy %s", v, m.constraint))
		}
	}

	return result.ErrorOrNil()
}
