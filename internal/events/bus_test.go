package events

import "testing"

func TestTriggerInRegistrationOrder(t *testing.T) {
	b := New()
	var got []int
	b.On("topic", func(any) { got = append(got, 1) })
	b.On("topic", func(any) { got = append(got, 2) })
	b.On("topic", func(any) { got = append(got, 3) })

	b.Trigger("topic", nil)

	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("handlers called %d times, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call order %v, want %v", got, want)
			break
		}
	}
}

func TestTriggerPassesPayload(t *testing.T) {
	b := New()
	var got any
	b.On("save", func(p any) { got = p })

	b.Trigger("save", "payload")

	if got != "payload" {
		t.Errorf("payload = %v, want %q", got, "payload")
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	b := New()
	calls := map[string]int{}
	b.On("a", func(any) { calls["a"]++ })
	b.On("b", func(any) { calls["b"]++ })

	b.Trigger("a", nil)
	b.Trigger("a", nil)
	b.Trigger("c", nil)

	if calls["a"] != 2 || calls["b"] != 0 {
		t.Errorf("calls = %v, want a:2 b:0", calls)
	}
}

func TestHandlerMayRegisterDuringTrigger(t *testing.T) {
	b := New()
	late := 0
	b.On("t", func(any) {
		b.On("t", func(any) { late++ })
	})

	b.Trigger("t", nil)
	if late != 0 {
		t.Fatalf("late handler ran during its own registration trigger")
	}
	b.Trigger("t", nil)
	if late != 1 {
		t.Errorf("late handler calls = %d, want 1", late)
	}
}

func TestNilHandlerIgnored(t *testing.T) {
	b := New()
	b.On("t", nil)
	b.Trigger("t", nil) // must not panic
}
