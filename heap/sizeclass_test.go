package heap

import "testing"

// Test_SizeClass_Boundaries tests the power-of-two class lower bounds.
func Test_SizeClass_Boundaries(t *testing.T) {
	if classBoundaries[0] != 16 {
		t.Fatalf("Expected class 0 boundary 16, got %d", classBoundaries[0])
	}
	if classBoundaries[NumClasses-1] != 1<<31 {
		t.Fatalf("Expected last boundary 2^31, got %d", classBoundaries[NumClasses-1])
	}
	for i := 1; i < NumClasses; i++ {
		if classBoundaries[i] != classBoundaries[i-1]*2 {
			t.Fatalf("Boundaries not doubling at class %d", i)
		}
	}
}

// Test_SizeClass_ClassOf tests the size-to-class mapping at and around the
// class boundaries.
func Test_SizeClass_ClassOf(t *testing.T) {
	cases := []struct {
		size uint32
		want int
	}{
		{16, 0},
		{31, 0},
		{32, 1},
		{48, 1},
		{64, 2},
		{4096, 8},
		{1 << 30, 26},
		{1<<31 - 16, 26},
		{1 << 31, 27},
		{1<<32 - 16, 27}, // largest encodable size, open-ended top class
	}
	for _, c := range cases {
		if got := ClassOf(c.size); got != c.want {
			t.Errorf("ClassOf(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

// Test_SizeClass_Monotonic tests that the mapping never decreases as sizes
// grow through every boundary.
func Test_SizeClass_Monotonic(t *testing.T) {
	prev := 0
	for i := 0; i < NumClasses; i++ {
		b := classBoundaries[i]
		for _, size := range []uint32{b, b + 16} {
			got := ClassOf(size)
			if got < prev {
				t.Fatalf("ClassOf(%d) = %d decreased below %d", size, got, prev)
			}
			prev = got
		}
	}
}
