package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetPoolKeepsSingleActive(t *testing.T) {
	m := New()
	m.SetPool("blue")
	m.SetPool("green")
	assert.Equal(t, 1, testutil.CollectAndCount(m.CurrentPool))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CurrentPool.WithLabelValues("green")))

	m.SetPool("")
	assert.Equal(t, 0, testutil.CollectAndCount(m.CurrentPool))
}

func TestSetMaintenance(t *testing.T) {
	m := New()
	m.SetMaintenance(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Maintenance))
	m.SetMaintenance(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Maintenance))
}
