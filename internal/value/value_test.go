package value

import "testing"

func TestPromoteSingleton(t *testing.T) {
	tests := []struct {
		name     string
		seq      Sequence
		wantEmpty bool
		wantMulti bool
	}{
		{"empty", Empty(), true, false},
		{"one", Single(int64(1)), false, false},
		{"many", Of(int64(1), int64(2)), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, isEmpty, multi := PromoteSingleton(tt.seq)
			if isEmpty != tt.wantEmpty || multi != tt.wantMulti {
				t.Errorf("PromoteSingleton(%v) = (empty=%v, multi=%v), want (empty=%v, multi=%v)",
					tt.seq, isEmpty, multi, tt.wantEmpty, tt.wantMulti)
			}
		})
	}
}

func TestBool3TruthValues(t *testing.T) {
	if *True3() != true {
		t.Fatal("True3 should deref to true")
	}
	if *False3() != false {
		t.Fatal("False3 should deref to false")
	}
	if Empty3() != nil {
		t.Fatal("Empty3 should be nil")
	}
}

func TestToBool3FromSequence(t *testing.T) {
	b, err := ToBool3(Single(true))
	if err != nil || b == nil || !*b {
		t.Fatalf("ToBool3(true) = (%v, %v), want true", b, err)
	}
	b, err = ToBool3(Empty())
	if err != nil || b != nil {
		t.Fatalf("ToBool3(empty) = (%v, %v), want nil", b, err)
	}
	if _, err := ToBool3(Of(true, false)); err == nil {
		t.Fatal("ToBool3 of a multi-item sequence should error")
	}
}

func TestEqualCrossNumericTypes(t *testing.T) {
	if !Equal(int64(3), float64(3.0)) {
		t.Error("Equal(3, 3.0) should be true")
	}
	if Equal(int64(3), float64(3.5)) {
		t.Error("Equal(3, 3.5) should be false")
	}
}

func TestConcatPreservesOrderAndDuplicates(t *testing.T) {
	got := Concat(Of(int64(1), int64(2)), Of(int64(2), int64(3)))
	want := []any{int64(1), int64(2), int64(2), int64(3)}
	if len(got) != len(want) {
		t.Fatalf("Concat length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !Equal(got[i], want[i]) {
			t.Errorf("Concat[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
