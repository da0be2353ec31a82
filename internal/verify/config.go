package verify

import (
	"github.com/high-horse/fingerprint-server/internal/config"
	"github.com/high-horse/fingerprint-server/internal/geometry"
	"github.com/high-horse/fingerprint-server/internal/matcher"
)

// OptionsFrom maps the [matching] section onto pipeline options. Sink and
// Observer are left for the caller.
func OptionsFrom(m config.Matching) Options {
	opts := DefaultOptions()
	if m.Workers > 0 {
		opts.Workers = m.Workers
	}
	opts.Matcher = matcher.Options{Trees: m.Trees, Checks: m.Checks, Seed: m.Seed}
	opts.RANSAC = geometry.RANSACOptions{
		Threshold:     m.RANSACThreshold,
		MaxIterations: m.RANSACIter,
		Confidence:    m.RANSACConf,
		Seed:          m.Seed,
	}
	opts.CacheTTL = m.CacheTTL
	return opts
}
