package util

import "testing"

func TestRoundupRounddown(t *testing.T) {
	cases := []struct {
		v, b, up, down int
	}{
		{0, 4096, 0, 0},
		{1, 4096, 4096, 0},
		{4096, 4096, 4096, 4096},
		{4097, 4096, 8192, 4096},
	}
	for _, c := range cases {
		if got := Roundup(c.v, c.b); got != c.up {
			t.Errorf("Roundup(%d, %d) = %d, want %d", c.v, c.b, got, c.up)
		}
		if got := Rounddown(c.v, c.b); got != c.down {
			t.Errorf("Rounddown(%d, %d) = %d, want %d", c.v, c.b, got, c.down)
		}
	}
}

func TestMin(t *testing.T) {
	if Min(3, 5) != 3 {
		t.Fatal("Min(3, 5) should be 3")
	}
	if Min(5, 3) != 3 {
		t.Fatal("Min(5, 3) should be 3")
	}
}

func TestWritenReadnRoundtrip(t *testing.T) {
	buf := make([]byte, 16)
	Writen(buf, 8, 0, 1234)
	Writen(buf, 4, 8, -7)
	if got := Readn(buf, 8, 0); got != 1234 {
		t.Fatalf("Readn(8) = %d, want 1234", got)
	}
	if got := Readn(buf, 4, 8); int32(got) != -7 {
		t.Fatalf("Readn(4) = %d, want -7", got)
	}
}

func TestWritenOutOfBoundsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-bounds Writen")
		}
	}()
	buf := make([]byte, 4)
	Writen(buf, 8, 0, 1)
}
