package domain

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/url"
	"regexp"
	"strings"
	"text/tabwriter"

	"golang.org/x/net/idna"
)

// Suffixes is the allow-list of public suffixes a Domain may carry.
var Suffixes = []string{".com", ".io", ".dev", ".app", ".co", ".net", ".org", ".ai", ".xyz"}

// DefaultSuffixes is used when the caller does not pick any.
var DefaultSuffixes = []string{".com"}

var nameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,18}[a-z0-9])?$`)

// Domain is a candidate name under one allow-listed suffix. Its identity is
// Name+Suffix.
type Domain struct {
	Name   string `json:"name"`
	Suffix string `json:"suffix"`
}

func (d Domain) String() string { return d.Name + d.Suffix }

// New validates name and suffix and returns the Domain.
func New(name, suffix string) (Domain, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	s, err := NormalizeSuffix(suffix)
	if err != nil {
		return Domain{}, err
	}
	if !ValidName(name) {
		return Domain{}, fmt.Errorf("invalid name %q", name)
	}
	return Domain{Name: name, Suffix: s}, nil
}

// ValidName reports whether name is lowercase alphanumeric plus inner
// hyphens, 2 to 20 characters long.
func ValidName(name string) bool {
	return len(name) >= 2 && nameRe.MatchString(name)
}

// NormalizeSuffix accepts "com", ".COM" or " .com " and returns ".com" if it
// is allow-listed.
func NormalizeSuffix(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("empty suffix")
	}
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	for _, ok := range Suffixes {
		if s == ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("unsupported suffix %q (use %s)", s, strings.Join(Suffixes, ","))
}

// Parse turns user input (bare domain, URL, host:port) into a Domain.
func Parse(input string) (Domain, error) {
	ascii, err := Normalize(input)
	if err != nil {
		return Domain{}, err
	}
	i := strings.IndexByte(ascii, '.')
	return New(ascii[:i], ascii[i:])
}

// Expand builds one Domain per suffix for every name, skipping pairs that do
// not validate.
func Expand(names, suffixes []string) []Domain {
	out := make([]Domain, 0, len(names)*len(suffixes))
	for _, n := range names {
		for _, s := range suffixes {
			d, err := New(n, s)
			if err != nil {
				continue
			}
			out = append(out, d)
		}
	}
	return Dedupe(out)
}

// Dedupe drops repeated domains, keeping first-seen order.
func Dedupe(in []Domain) []Domain {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, d := range in {
		k := d.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}

// ParseList splits free-form input on commas and whitespace and keeps every
// entry that parses to a Domain, de-duplicated.
func ParseList(inputs []string) []Domain {
	var out []Domain
	for _, in := range inputs {
		for _, part := range strings.FieldsFunc(in, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
		}) {
			d, err := Parse(part)
			if err != nil {
				continue
			}
			out = append(out, d)
		}
	}
	return Dedupe(out)
}

// Normalize attempts to turn user input into an ASCII domain name suitable for
// registry lookups.
//
// It is permissive for agent/human inputs (allows URLs, strips paths, strips
// port). It returns an error if the remaining value is not a valid domain name.
func Normalize(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("empty domain")
	}

	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			if u.Host != "" {
				s = u.Host
			}
		}
	}

	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	} else {
		// net.SplitHostPort is strict; handle the common "example.com:443" case.
		if i := strings.LastIndexByte(s, ':'); i > 0 && i < len(s)-1 {
			maybePort := s[i+1:]
			if isAllDigits(maybePort) {
				s = s[:i]
			}
		}
	}

	s = strings.TrimSuffix(s, ".")
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("empty domain")
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", fmt.Errorf("idna: %w", err)
	}

	if !strings.Contains(ascii, ".") {
		return "", fmt.Errorf("domain must contain a dot: %q", input)
	}

	if !isValidDomainASCII(ascii) {
		return "", fmt.Errorf("invalid domain: %q", input)
	}

	return ascii, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func ReadLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	var out []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func NewTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func isValidDomainASCII(s string) bool {
	if len(s) < 1 || len(s) > 253 {
		return false
	}
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) < 1 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
				continue
			}
			return false
		}
	}
	return true
}
