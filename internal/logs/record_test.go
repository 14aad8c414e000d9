package logs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValueLine(t *testing.T) {
	p := NewParser([]string{"blue", "green"})
	line := `time=2026-10-19T12:00:01+00:00 method=GET uri=/version status=200 pool=blue release=blue-v1.0.3 upstream=172.18.0.2:3000 upstream_status=200 request_time=0.004 upstream_response_time=0.003`

	rec, err := p.Parse(line)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 12, 0, 1, 0, time.UTC), rec.TS)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, "/version", rec.URI)
	assert.Equal(t, 200, rec.Status)
	assert.Equal(t, "blue", rec.Pool)
	assert.Equal(t, "blue-v1.0.3", rec.Release)
	assert.Equal(t, "172.18.0.2:3000", rec.UpstreamAddr)
	assert.Equal(t, 200, rec.LastUpstreamStatus())
	assert.Equal(t, 4*time.Millisecond, rec.RequestTime)
	assert.Equal(t, 3*time.Millisecond, rec.UpstreamResponseTime)
}

func TestParseUnquotedUpstreamLists(t *testing.T) {
	p := NewParser([]string{"blue", "green"})
	line := `time=2026-10-19T12:00:01+00:00 status=200 pool=green upstream=172.18.0.2:3000, 172.18.0.3:3000 upstream_status=502, 200 request_time=0.015 upstream_response_time=0.010, 0.002`

	rec, err := p.Parse(line)
	require.NoError(t, err)
	assert.Equal(t, "green", rec.Pool)
	assert.Equal(t, "172.18.0.2:3000, 172.18.0.3:3000", rec.UpstreamAddr)
	assert.Equal(t, "502, 200", rec.UpstreamStatus)
	assert.Equal(t, 200, rec.LastUpstreamStatus())
	assert.Equal(t, 15*time.Millisecond, rec.RequestTime)
	assert.Equal(t, 12*time.Millisecond, rec.UpstreamResponseTime)
}

func TestParsePipeSeparatedReordered(t *testing.T) {
	p := NewParser([]string{"blue", "green"})
	line := `pool:green|status:502|time_local:[19/Oct/2026:12:00:01 +0000]|request:"GET /version HTTP/1.1"|release:green-v2|upstream_status:"502, 200"|upstream_response_time:"0.010, 0.002"|request_time:-`

	rec, err := p.Parse(line)
	require.NoError(t, err)
	assert.Equal(t, "green", rec.Pool)
	assert.Equal(t, 502, rec.Status)
	assert.True(t, rec.IsServerError())
	assert.Equal(t, time.Date(2026, 10, 19, 12, 0, 1, 0, time.UTC), rec.TS)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, "/version", rec.URI)
	assert.Equal(t, 200, rec.LastUpstreamStatus())
	assert.Equal(t, 12*time.Millisecond, rec.UpstreamResponseTime)
	assert.Equal(t, time.Duration(0), rec.RequestTime)
}

func TestParsePoolFromRelease(t *testing.T) {
	p := NewParser([]string{"blue", "green"})
	rec, err := p.Parse(`time=2026-10-19T12:00:01Z status=200 release=green-v2`)
	require.NoError(t, err)
	assert.Equal(t, "green", rec.Pool)
}

func TestParseFailures(t *testing.T) {
	p := NewParser([]string{"blue", "green"})
	cases := []struct {
		name  string
		line  string
		field string
		want  error
	}{
		{"empty", "", "time", ErrMissingField},
		{"no time", "status=200 pool=blue", "time", ErrMissingField},
		{"bad time", "time=yesterday status=200 pool=blue", "time", ErrInvalidTime},
		{"no status", "time=2026-10-19T12:00:01Z pool=blue", "status", ErrMissingField},
		{"bad status", "time=2026-10-19T12:00:01Z status=abc pool=blue", "status", ErrInvalidNumber},
		{"no pool", "time=2026-10-19T12:00:01Z status=200", "pool", ErrMissingField},
		{"unknown pool", "time=2026-10-19T12:00:01Z status=200 pool=red", "pool", ErrUnknownPool},
		{"bad timing", "time=2026-10-19T12:00:01Z status=200 pool=blue request_time=fast", "request_time", ErrInvalidNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Parse(tc.line)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrMalformed)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.field, pe.Field)
			assert.Equal(t, tc.line, pe.Line)
		})
	}
}

func TestParseAnyPoolWhenUnrestricted(t *testing.T) {
	p := NewParser(nil)
	rec, err := p.Parse(`time=2026-10-19T12:00:01Z status=200 pool=Canary`)
	require.NoError(t, err)
	assert.Equal(t, "canary", rec.Pool)
}
