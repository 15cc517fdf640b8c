package mqtt

import (
	"fmt"
	"testing"
)

func msg(i int) bufferedMsg {
	return bufferedMsg{
		topic:   TopicTelemetry,
		payload: []byte(fmt.Sprintf("msg-%d", i)),
		qos:     0,
	}
}

func TestRingBufferPushDrain(t *testing.T) {
	r := newRingBuffer(4)

	for i := 0; i < 3; i++ {
		r.push(msg(i))
	}
	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}

	out := r.drainAll()
	if len(out) != 3 {
		t.Fatalf("drained %d, want 3", len(out))
	}
	for i, m := range out {
		if want := fmt.Sprintf("msg-%d", i); string(m.payload) != want {
			t.Errorf("out[%d] = %s, want %s", i, m.payload, want)
		}
	}
	if r.len() != 0 {
		t.Errorf("len after drain = %d, want 0", r.len())
	}
}

func TestRingBufferDrainEmpty(t *testing.T) {
	r := newRingBuffer(4)
	if out := r.drainAll(); out != nil {
		t.Errorf("drainAll on empty buffer = %v, want nil", out)
	}
}

func TestRingBufferOverflowDropsOldest(t *testing.T) {
	r := newRingBuffer(3)

	for i := 0; i < 5; i++ {
		r.push(msg(i))
	}
	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}

	out := r.drainAll()
	// Messages 0 and 1 were dropped; 2, 3, 4 survive in order.
	want := []string{"msg-2", "msg-3", "msg-4"}
	for i, m := range out {
		if string(m.payload) != want[i] {
			t.Errorf("out[%d] = %s, want %s", i, m.payload, want[i])
		}
	}
}

func TestRingBufferReuseAfterDrain(t *testing.T) {
	r := newRingBuffer(2)

	r.push(msg(0))
	r.push(msg(1))
	r.push(msg(2)) // overflow
	r.drainAll()

	r.push(msg(10))
	out := r.drainAll()
	if len(out) != 1 || string(out[0].payload) != "msg-10" {
		t.Errorf("after reuse got %v", out)
	}
}

func TestRingBufferPreservesMessageFields(t *testing.T) {
	r := newRingBuffer(2)
	r.push(bufferedMsg{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})

	out := r.drainAll()
	if len(out) != 1 {
		t.Fatalf("drained %d, want 1", len(out))
	}
	m := out[0]
	if m.topic != TopicSystem || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
}
