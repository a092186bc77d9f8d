package mem

import "testing"

func TestRoundDownUp(t *testing.T) {
	cases := []struct {
		v, down, up uintptr
	}{
		{0, 0, 0},
		{1, 0, uintptr(PGSIZE)},
		{uintptr(PGSIZE), uintptr(PGSIZE), uintptr(PGSIZE)},
		{uintptr(PGSIZE) + 1, uintptr(PGSIZE), 2 * uintptr(PGSIZE)},
	}
	for _, c := range cases {
		if got := Rounddown(c.v); got != c.down {
			t.Errorf("Rounddown(%d) = %d, want %d", c.v, got, c.down)
		}
		if got := Roundup(c.v); got != c.up {
			t.Errorf("Roundup(%d) = %d, want %d", c.v, got, c.up)
		}
	}
}

func TestPoolAllocFree(t *testing.T) {
	p := NewPool(2)
	if p.Free() != 2 || p.Total() != 2 {
		t.Fatalf("fresh pool: free=%d total=%d, want 2 2", p.Free(), p.Total())
	}
	a, ok := p.AllocUserPage()
	if !ok {
		t.Fatal("expected allocation to succeed")
	}
	a[0] = 0x42
	b, ok := p.AllocUserPage()
	if !ok {
		t.Fatal("expected second allocation to succeed")
	}
	if p.Free() != 0 {
		t.Fatalf("free = %d, want 0", p.Free())
	}
	if _, ok := p.AllocUserPage(); ok {
		t.Fatal("expected pool exhaustion")
	}
	p.FreeUserPage(a)
	if p.Free() != 1 {
		t.Fatalf("free = %d, want 1", p.Free())
	}
	c, ok := p.AllocUserPage()
	if !ok {
		t.Fatal("expected allocation after free to succeed")
	}
	if c[0] != 0 {
		t.Fatalf("reused frame not zeroed: got %#x", c[0])
	}
	p.FreeUserPage(b)
	p.FreeUserPage(c)
}

func TestPoolDoubleFreePanics(t *testing.T) {
	p := NewPool(1)
	a, _ := p.AllocUserPage()
	p.FreeUserPage(a)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	p.FreeUserPage(a)
}
