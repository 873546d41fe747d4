package telemetry

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_SubscribeWithID(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, id := hub.SubscribeWithID()
	require.NotEmpty(t, id, "subscriber ID should not be empty")
	require.NotNil(t, ch, "channel should not be nil")

	hub.Publish(Event{Type: EventCommandApplied, ComponentID: "img_1"})

	select {
	case received := <-ch:
		assert.Equal(t, EventCommandApplied, received.Type)
		assert.Equal(t, "img_1", received.ComponentID)
		assert.False(t, received.Timestamp.IsZero(), "timestamp should be filled in")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestHub_UnsubscribeByID(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, id := hub.SubscribeWithID()
	hub.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	assert.NotPanics(t, func() {
		hub.Unsubscribe(id)
	})
}

func TestHub_SubscribeCleanup(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch1, unsub1 := hub.Subscribe()
	ch2, unsub2 := hub.Subscribe()
	defer unsub2()

	unsub1()
	hub.Publish(Event{Type: EventActivated})

	_, ok := <-ch1
	assert.False(t, ok)

	select {
	case ev := <-ch2:
		assert.Equal(t, EventActivated, ev.Type)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("remaining subscriber should still receive events")
	}
}

func TestHub_DropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHubWithBuffer(2)
	defer hub.Close()

	ch, id := hub.SubscribeWithID()
	defer hub.Unsubscribe(id)

	for i := 0; i < 5; i++ {
		hub.Publish(Event{Type: EventInputChanged})
	}

	assert.Len(t, ch, 2)
	assert.Equal(t, uint64(3), hub.GetStats().Dropped)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	ch, _ := hub.SubscribeWithID()
	hub.Close()
	hub.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, id := hub.SubscribeWithID()
	assert.Empty(t, id)
	_, ok = <-late
	assert.False(t, ok)

	assert.NotPanics(t, func() { hub.Publish(Event{Type: EventActivated}) })
}

func TestHub_NilPublish(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() { hub.Publish(Event{Type: EventActivated}) })
}

func TestHub_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, id := hub.SubscribeWithID()
			hub.Publish(Event{Type: EventCommandApplied})
			hub.Unsubscribe(id)
			for range ch {
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.GetStats().SubscriberCount, "all subscribers should be cleaned up")
}

func TestObserveCommand(t *testing.T) {
	applied := metricValue(t, CommandsTotal.WithLabelValues("test_kind", ResultApplied))
	rejected := metricValue(t, CommandsTotal.WithLabelValues("test_kind", ResultRejected))
	codeErrs := metricValue(t, ErrorsTotal.WithLabelValues("TEST_CODE"))

	ObserveCommand("test_kind", time.Now(), "")
	ObserveCommand("test_kind", time.Now(), "TEST_CODE")

	assert.Equal(t, applied+1, metricValue(t, CommandsTotal.WithLabelValues("test_kind", ResultApplied)))
	assert.Equal(t, rejected+1, metricValue(t, CommandsTotal.WithLabelValues("test_kind", ResultRejected)))
	assert.Equal(t, codeErrs+1, metricValue(t, ErrorsTotal.WithLabelValues("TEST_CODE")))
}

func TestSetInteractionEnabled(t *testing.T) {
	SetInteractionEnabled(true)
	assert.Equal(t, 1.0, metricValue(t, InteractionEnabled))
	SetInteractionEnabled(false)
	assert.Equal(t, 0.0, metricValue(t, InteractionEnabled))
}

func TestObserveReload(t *testing.T) {
	ok := metricValue(t, LayoutReloads.WithLabelValues(ResultApplied))
	failed := metricValue(t, LayoutReloads.WithLabelValues(ResultRejected))

	ObserveReload(nil)
	ObserveReload(errors.New("bad layout"))

	assert.Equal(t, ok+1, metricValue(t, LayoutReloads.WithLabelValues(ResultApplied)))
	assert.Equal(t, failed+1, metricValue(t, LayoutReloads.WithLabelValues(ResultRejected)))
}

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %s", m.Desc())
	return 0
}

func TestTracerProviderExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider("panel", "test", &buf)
	require.NoError(t, err)

	_, span := tp.Tracer().Start(context.Background(), "panel.display")
	span.SetAttributes(AttrJobKind.String("display"))
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "panel.display")
	assert.Contains(t, buf.String(), "panel.job.kind")
}

func TestNoopTracer(t *testing.T) {
	_, span := NoopTracer().Start(context.Background(), "panel.activate")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
