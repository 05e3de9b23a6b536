package parse

import (
	"fmt"
	"regexp"
	"strings"
)

// Fleet vehicles are named "<fleet no> - <registration> (<trailer reg>)",
// e.g. "21H - AGZ 1963 (ADS 4865)". The trailer part is optional, and some
// units carry only a registration.
var (
	fleetNameRe = regexp.MustCompile(`^([0-9]+[A-Za-z]*|[A-Za-z]+[0-9]+)\s*-\s*(.+)$`)
	trailerRe   = regexp.MustCompile(`\(([^)]+)\)\s*$`)
)

// ParsedName holds the structured data parsed from a vehicle's display name.
type ParsedName struct {
	FleetNo      string
	Registration string
	TrailerReg   string
}

// ParseName extracts fleet number, registration and trailer registration
// from a raw unit display name.
func ParseName(raw string) (ParsedName, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedName{}, fmt.Errorf("empty vehicle name")
	}

	var p ParsedName

	if m := trailerRe.FindStringSubmatch(s); m != nil {
		p.TrailerReg = strings.TrimSpace(m[1])
		s = strings.TrimSpace(trailerRe.ReplaceAllString(s, ""))
	}

	if m := fleetNameRe.FindStringSubmatch(s); m != nil {
		p.FleetNo = strings.TrimSpace(m[1])
		p.Registration = strings.TrimSpace(m[2])
	} else {
		// No fleet prefix; the whole remainder is the registration.
		p.Registration = s
	}

	if p.Registration == "" {
		return ParsedName{}, fmt.Errorf("unable to parse vehicle name: %q", raw)
	}
	return p, nil
}
