package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// perSecondSuffix ends every bandwidth value except "0".
const perSecondSuffix = "/s"

// ParseBandwidth converts a rate such as "5MB/s" or "512KiB/s" to bytes per
// second. SI and IEC units are both accepted, case-insensitively. Empty and
// "0" mean unlimited and return 0.
func ParseBandwidth(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	amount, ok := strings.CutSuffix(strings.ToLower(s), perSecondSuffix)
	if !ok {
		return 0, fmt.Errorf("invalid bandwidth %q: must end in %s", s, perSecondSuffix)
	}

	if strings.HasPrefix(amount, "-") {
		return 0, fmt.Errorf("invalid bandwidth %q: must be non-negative", s)
	}

	n, err := humanize.ParseBytes(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth %q: %w", s, err)
	}

	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid bandwidth %q: too large", s)
	}

	return int64(n), nil
}
