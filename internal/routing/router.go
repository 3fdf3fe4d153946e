// ABOUTME: Keyword/regex domain router for education, health and governance.
// ABOUTME: Priority health > governance > education, defaulting to education.

package routing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownDomain is returned when a domain string is not one of the three domains.
var ErrUnknownDomain = errors.New("unknown domain")

// Domain is a service category.
type Domain string

const (
	Education  Domain = "education"
	Health     Domain = "health"
	Governance Domain = "governance"
)

// Domains lists every domain in display order.
var Domains = []Domain{Education, Governance, Health}

// ParseDomain validates a domain name.
func ParseDomain(s string) (Domain, error) {
	switch d := Domain(strings.ToLower(strings.TrimSpace(s))); d {
	case Education, Health, Governance:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
	}
}

var (
	educationPattern  = regexp.MustCompile(`lesson|plan|class|teacher|student|exam|curriculum|school|mw\w*|shule|mwalimu|mtihani|puonj|chuo`)
	healthPattern     = regexp.MustCompile(`pain|symptom|fever|cough|hospital|clinic|afya|ugonjwa|dalili|dawa|\bmaumivu\b|\bhoma\b|pregnan|mental|nutrition|first aid`)
	governancePattern = regexp.MustCompile(`id|passport|birth|certificate|kra|ntsa|licen|huduma|serikali|county|permit|business|registration|form|e-citizen|ecitizen`)
)

// classifier pairs a pattern with the domain it selects.
type classifier struct {
	domain  Domain
	pattern *regexp.Regexp
}

// classifiers in priority order.
var classifiers = []classifier{
	{Health, healthPattern},
	{Governance, governancePattern},
	{Education, educationPattern},
}

// Route returns the domain for text. It is pure and total.
func Route(text string) Domain {
	t := strings.ToLower(text)
	for _, c := range classifiers {
		if c.pattern.MatchString(t) {
			return c.domain
		}
	}
	return Education
}

// Matches reports every domain whose classifier matches text, in priority order.
func Matches(text string) []Domain {
	t := strings.ToLower(text)
	var out []Domain
	for _, c := range classifiers {
		if c.pattern.MatchString(t) {
			out = append(out, c.domain)
		}
	}
	return out
}
