package mqtt

import (
	"testing"
)

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(10)
	got := o.drain()
	if got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutboxAddAndDrain(t *testing.T) {
	o := newOutbox(10)
	for i := 0; i < 5; i++ {
		o.add(pendingMsg{topic: "t", payload: []byte{byte(i)}})
	}

	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}

	if got2 := o.drain(); got2 != nil {
		t.Errorf("expected nil from second drain, got %d items", len(got2))
	}
}

func TestOutboxOverflowDropsOldest(t *testing.T) {
	o := newOutbox(5)
	for i := 0; i < 8; i++ {
		o.add(pendingMsg{topic: "t", payload: []byte{byte(i)}})
	}

	if o.len() != 5 {
		t.Fatalf("expected len 5, got %d", o.len())
	}
	if o.dropped != 3 {
		t.Errorf("expected 3 dropped, got %d", o.dropped)
	}

	got := o.drain()
	for i, msg := range got {
		if want := byte(i + 3); msg.payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, msg.payload[0])
		}
	}
	if o.dropped != 0 {
		t.Error("drain should reset the drop count")
	}
}

func TestOutboxReuseAfterDrain(t *testing.T) {
	o := newOutbox(3)
	o.add(pendingMsg{payload: []byte{1}})
	o.drain()
	o.add(pendingMsg{payload: []byte{2}})

	got := o.drain()
	if len(got) != 1 || got[0].payload[0] != 2 {
		t.Errorf("unexpected drain after reuse: %+v", got)
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(2)
	o.add(pendingMsg{topic: TopicSessions, payload: []byte("x"), qos: 1, retained: true})

	got := o.drain()[0]
	if got.topic != TopicSessions || got.qos != 1 || !got.retained || string(got.payload) != "x" {
		t.Errorf("fields not preserved: %+v", got)
	}
}

func TestOutboxMinimumLimit(t *testing.T) {
	o := newOutbox(0)
	o.add(pendingMsg{payload: []byte{1}})
	o.add(pendingMsg{payload: []byte{2}})
	if o.len() != 1 {
		t.Errorf("expected limit clamped to 1, got len %d", o.len())
	}
}
