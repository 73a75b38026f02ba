package obfuscate

import "testing"

func TestMapCache_InsertNeverOverwrites(t *testing.T) {
	cache := NewMapCache()
	key := Key{Value: 12, Bin: 3}

	stored, err := cache.Insert(key, 20)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if stored != 20 {
		t.Fatalf("Expected 20, got %d", stored)
	}

	stored, err = cache.Insert(key, 30)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if stored != 20 {
		t.Fatalf("Second insert should return the original 20, got %d", stored)
	}

	if v, ok := cache.Lookup(key); !ok || v != 20 {
		t.Fatalf("Lookup returned %d, %v", v, ok)
	}
	if _, ok := cache.Lookup(Key{Value: 12, Bin: 4}); ok {
		t.Fatal("Different bin should miss")
	}
}

func TestLockedCache_DelegatesToInner(t *testing.T) {
	inner := NewMapCache()
	cache := NewLockedCache(inner)

	if _, err := cache.Insert(Key{Value: 1}, 10); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if v, ok := cache.Lookup(Key{Value: 1}); !ok || v != 10 {
		t.Fatalf("Lookup returned %d, %v", v, ok)
	}
	if inner.Len() != 1 {
		t.Fatalf("Inner cache should hold 1 entry, has %d", inner.Len())
	}
}

func TestStatsCache_Counts(t *testing.T) {
	cache := NewStatsCache(NewMapCache())

	cache.Lookup(Key{Value: 1})
	cache.Insert(Key{Value: 1}, 0)
	cache.Lookup(Key{Value: 1})
	cache.Lookup(Key{Value: 2})

	want := CacheStats{Hits: 1, Misses: 2, Inserts: 1}
	if got := cache.Stats(); got != want {
		t.Fatalf("Expected %+v, got %+v", want, got)
	}
}
