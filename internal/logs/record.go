package logs

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"poolwatch/internal/models"
)

var (
	ErrMalformed     = errors.New("malformed record")
	ErrMissingField  = fmt.Errorf("%w: missing field", ErrMalformed)
	ErrInvalidNumber = fmt.Errorf("%w: invalid number", ErrMalformed)
	ErrInvalidTime   = fmt.Errorf("%w: invalid time", ErrMalformed)
	ErrUnknownPool   = fmt.Errorf("%w: unknown pool", ErrMalformed)
)

// ParseError carries the rejected line alongside the reason.
type ParseError struct {
	Line  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

const nginxTimeLocal = "02/Jan/2006:15:04:05 -0700"

// Parser turns access log lines into RequestRecords. Lines are whitespace or
// pipe separated tokens of key=value or key:value, in any order.
type Parser struct {
	pools map[string]bool
}

// NewParser accepts only the listed pool tokens; an empty list accepts any.
func NewParser(pools []string) *Parser {
	p := &Parser{pools: map[string]bool{}}
	for _, name := range pools {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			p.pools[name] = true
		}
	}
	return p
}

func (p *Parser) Parse(line string) (models.RequestRecord, error) {
	fields := splitFields(line)
	var rec models.RequestRecord
	fail := func(field string, err error) (models.RequestRecord, error) {
		return models.RequestRecord{}, &ParseError{Line: line, Field: field, Err: err}
	}

	ts, ok := lookup(fields, "time", "ts", "time_iso8601", "time_local")
	if !ok {
		return fail("time", ErrMissingField)
	}
	t, err := parseTime(ts)
	if err != nil {
		return fail("time", fmt.Errorf("%w: %q", ErrInvalidTime, ts))
	}
	rec.TS = t

	status, ok := lookup(fields, "status")
	if !ok {
		return fail("status", ErrMissingField)
	}
	if rec.Status, err = strconv.Atoi(status); err != nil {
		return fail("status", fmt.Errorf("%w: %q", ErrInvalidNumber, status))
	}

	rec.Release, _ = lookup(fields, "release")
	pool, ok := lookup(fields, "pool")
	if !ok {
		// Some deployments only stamp the release, named <pool>-<version>.
		if i := strings.IndexByte(rec.Release, '-'); i > 0 && len(p.pools) > 0 && p.known(strings.ToLower(rec.Release[:i])) {
			pool, ok = rec.Release[:i], true
		}
	}
	if !ok {
		return fail("pool", ErrMissingField)
	}
	rec.Pool = strings.ToLower(pool)
	if !p.known(rec.Pool) {
		return fail("pool", fmt.Errorf("%w: %q", ErrUnknownPool, pool))
	}

	rec.Method, _ = lookup(fields, "method", "request_method")
	rec.URI, _ = lookup(fields, "uri", "request_uri")
	if req, ok := lookup(fields, "request"); ok && (rec.Method == "" || rec.URI == "") {
		parts := strings.Fields(req)
		if len(parts) >= 2 {
			if rec.Method == "" {
				rec.Method = parts[0]
			}
			if rec.URI == "" {
				rec.URI = parts[1]
			}
		}
	}
	rec.UpstreamAddr, _ = lookup(fields, "upstream", "upstream_addr")
	rec.UpstreamStatus, _ = lookup(fields, "upstream_status")

	if v, ok := lookup(fields, "request_time"); ok {
		if rec.RequestTime, err = parseSeconds(v); err != nil {
			return fail("request_time", err)
		}
	}
	if v, ok := lookup(fields, "upstream_response_time"); ok {
		if rec.UpstreamResponseTime, err = parseSeconds(v); err != nil {
			return fail("upstream_response_time", err)
		}
	}
	return rec, nil
}

func (p *Parser) known(pool string) bool {
	if len(p.pools) == 0 {
		return pool != ""
	}
	return p.pools[pool]
}

// splitFields tokenizes a line. Double quotes and square brackets group spaces
// into one value and are dropped; a token without a separator is ignored.
// nginx joins multi-upstream values with ", ", so a token following one that
// ends in a comma continues it unless it starts a new key.
func splitFields(line string) map[string]string {
	var toks []string
	var cur strings.Builder
	inQuote, inBracket := false, false
	flush := func() {
		tok := cur.String()
		cur.Reset()
		if n := len(toks); n > 0 && strings.HasSuffix(toks[n-1], ",") && !startsKey(tok) {
			toks[n-1] += " " + tok
			return
		}
		toks = append(toks, tok)
	}
	for _, r := range line {
		switch {
		case r == '"' && !inBracket:
			inQuote = !inQuote
		case r == '[' && !inQuote:
			inBracket = true
		case r == ']' && !inQuote && inBracket:
			inBracket = false
		case !inQuote && !inBracket && (r == ' ' || r == '\t' || r == '|' || r == '\r' || r == '\n'):
			if cur.Len() > 0 {
				flush()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		flush()
	}

	out := make(map[string]string, len(toks))
	for _, tok := range toks {
		i := strings.IndexAny(tok, "=:")
		if i <= 0 {
			continue
		}
		key := strings.ToLower(tok[:i])
		val := strings.TrimSpace(tok[i+1:])
		if _, dup := out[key]; !dup {
			out[key] = val
		}
	}
	return out
}

// startsKey reports whether tok opens with an identifier followed by = or :.
// An address such as 172.18.0.3:3000 does not.
func startsKey(tok string) bool {
	i := strings.IndexAny(tok, "=:")
	if i <= 0 {
		return false
	}
	for j, r := range tok[:i] {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case j > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func lookup(fields map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(nginxTimeLocal, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseSeconds reads nginx timings: seconds with millisecond resolution, "-"
// when no upstream was contacted, or a comma list summed across attempts.
func parseSeconds(v string) (time.Duration, error) {
	var total time.Duration
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "-" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil || f < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, v)
		}
		total += time.Duration(math.Round(f*1e6)) * time.Microsecond
	}
	return total, nil
}
