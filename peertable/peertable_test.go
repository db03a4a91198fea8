package peertable

import "testing"

func TestAddOrUpdateIsIdempotent(t *testing.T) {
	table := New()
	peer := Peer{DeviceID: "d1", Alias: "desk", Address: "10.0.0.5", Port: 53317, LastActive: 100}

	table.AddOrUpdate(peer)
	table.AddOrUpdate(peer)

	snap := table.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() len = %d, want 1", len(snap))
	}
	if snap[0] != peer {
		t.Fatalf("Snapshot()[0] = %+v, want %+v", snap[0], peer)
	}
}

func TestAddOrUpdateOverwritesAllFields(t *testing.T) {
	table := New()
	table.AddOrUpdate(Peer{DeviceID: "d1", Alias: "old", Address: "10.0.0.5", Port: 1, LastActive: 1})
	table.AddOrUpdate(Peer{DeviceID: "d1", Alias: "new", Address: "10.0.0.9", Port: 2, LastActive: 2})

	got, ok := table.Lookup("d1")
	if !ok {
		t.Fatal("Lookup(d1) missing after update")
	}
	want := Peer{DeviceID: "d1", Alias: "new", Address: "10.0.0.9", Port: 2, LastActive: 2}
	if got != want {
		t.Fatalf("Lookup(d1) = %+v, want %+v", got, want)
	}
}

func TestRemoveStale(t *testing.T) {
	table := New()
	table.AddOrUpdate(Peer{DeviceID: "fresh", LastActive: 100})
	table.AddOrUpdate(Peer{DeviceID: "stale", LastActive: 50})

	table.RemoveStale(100, 30)

	if _, ok := table.Lookup("stale"); ok {
		t.Fatal("RemoveStale() left a stale peer in the table")
	}
	if _, ok := table.Lookup("fresh"); !ok {
		t.Fatal("RemoveStale() evicted a fresh peer")
	}
}

func TestRemoveStaleBoundaryIsInclusiveOfMaxAge(t *testing.T) {
	table := New()
	table.AddOrUpdate(Peer{DeviceID: "exact", LastActive: 70})

	table.RemoveStale(100, 30)

	if _, ok := table.Lookup("exact"); !ok {
		t.Fatal("RemoveStale() evicted a peer exactly at maxAgeSeconds, want now-last_active <= maxAgeSeconds kept")
	}
}

func TestSnapshotIsOwnedCopy(t *testing.T) {
	table := New()
	table.AddOrUpdate(Peer{DeviceID: "d1", Alias: "desk"})

	snap := table.Snapshot()
	snap[0].Alias = "mutated"

	got, _ := table.Lookup("d1")
	if got.Alias != "desk" {
		t.Fatalf("mutating a snapshot leaked into the table: Alias = %q", got.Alias)
	}
}

func TestLenMatchesSnapshot(t *testing.T) {
	table := New()
	table.AddOrUpdate(Peer{DeviceID: "d1"})
	table.AddOrUpdate(Peer{DeviceID: "d2"})

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if len(table.Snapshot()) != 2 {
		t.Fatalf("len(Snapshot()) = %d, want 2", len(table.Snapshot()))
	}
}
