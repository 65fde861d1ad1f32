package stt

import "testing"

func TestBroadcasterFanOut(t *testing.T) {
	b := newBroadcaster[int]()
	a, _ := b.subscribe()
	c, _ := b.subscribe()
	b.publish(1)
	b.publish(2)
	for _, ch := range []<-chan int{a, c} {
		if v := <-ch; v != 1 {
			t.Errorf("first value = %d, want 1", v)
		}
		if v := <-ch; v != 2 {
			t.Errorf("second value = %d, want 2", v)
		}
	}
}

func TestBroadcasterSlowSubscriber(t *testing.T) {
	b := newBroadcaster[int]()
	ch, _ := b.subscribe()
	for i := 0; i < subscriberBuffer*2; i++ {
		b.publish(i)
	}
	if n := len(ch); n != subscriberBuffer {
		t.Errorf("buffered %d values, want %d", n, subscriberBuffer)
	}
	if v := <-ch; v != 0 {
		t.Errorf("oldest value = %d, want 0", v)
	}
}

func TestBroadcasterClose(t *testing.T) {
	b := newBroadcaster[int]()
	ch, unsub := b.subscribe()
	b.close()
	b.close()
	unsub()
	if _, ok := <-ch; ok {
		t.Error("channel open after close")
	}
	late, _ := b.subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after close is open")
	}
	b.publish(1)
}
