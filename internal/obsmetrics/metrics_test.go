package obsmetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveMutation_OkAndError(t *testing.T) {
	m := New()

	m.ObserveMutation("Greetings", time.Now().Add(-time.Millisecond), nil)
	assert.Equal(t, 1, int(testutil.ToFloat64(m.MutationsTotal.WithLabelValues("Greetings", "ok"))))

	m.ObserveMutation("Greetings", time.Now(), errors.New("boom"))
	assert.Equal(t, 1, int(testutil.ToFloat64(m.MutationsTotal.WithLabelValues("Greetings", "error"))))
}

func TestObserveQuery(t *testing.T) {
	m := New()
	m.ObserveQuery("Greetings")
	m.ObserveQuery("Greetings")
	assert.Equal(t, 2, int(testutil.ToFloat64(m.QueriesTotal.WithLabelValues("Greetings"))))
}

func TestObserveSignatureCheck(t *testing.T) {
	m := New()
	m.ObserveSignatureCheck(true)
	m.ObserveSignatureCheck(false)
	assert.Equal(t, 1, int(testutil.ToFloat64(m.SignatureChecks.WithLabelValues("valid"))))
	assert.Equal(t, 1, int(testutil.ToFloat64(m.SignatureChecks.WithLabelValues("invalid"))))
}

func TestObserveRoomSynced(t *testing.T) {
	m := New()
	m.ObserveRoomSynced("room-a")
	assert.Equal(t, 1, int(testutil.ToFloat64(m.RoomsSynced.WithLabelValues("room-a"))))
}

func TestNew_RegistersEveryCollector(t *testing.T) {
	m := New()
	families, err := m.Registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.ObserveQuery("X")
	assert.Equal(t, 0, int(testutil.ToFloat64(b.QueriesTotal.WithLabelValues("X"))))
}
