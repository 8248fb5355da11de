package vm

import "testing"

func TestRemainingWorkFloorsAtZero(t *testing.T) {
	p := &Process{Estimate: 3}
	if p.RemainingWork() != 3 {
		t.Errorf("expected 3, got %d", p.RemainingWork())
	}
	p.Cycles = 5
	if p.RemainingWork() != 0 {
		t.Errorf("expected 0 once the estimate is exceeded, got %d", p.RemainingWork())
	}
}

func TestProcessTable(t *testing.T) {
	var table ProcessTable
	if !table.Empty() {
		t.Fatalf("zero table is not empty")
	}
	for id := PID(0); id < 4; id++ {
		table.Append(&Process{ID: id})
	}
	snap := table.Snapshot()
	if i := table.Index(2); i != 2 {
		t.Errorf("Index(2) = %d", i)
	}
	if p := table.RemoveAt(1); p.ID != 1 {
		t.Errorf("RemoveAt(1) removed process %d", p.ID)
	}
	if table.Len() != 3 || table.Index(1) != -1 {
		t.Errorf("process 1 still in the table")
	}
	if len(snap) != 4 || snap[1].ID != 1 {
		t.Errorf("snapshot changed with the table: %v", snap)
	}
}

func TestInsertOrderedBreaksTiesByID(t *testing.T) {
	var table ProcessTable
	table.InsertOrdered(&Process{ID: 5, Priority: 2})
	table.InsertOrdered(&Process{ID: 1, Priority: 2})
	if i := table.InsertOrdered(&Process{ID: 3, Priority: 2}); i != 1 {
		t.Errorf("expected process 3 between 1 and 5, got index %d", i)
	}
	if i := table.InsertOrdered(&Process{ID: 9, Priority: 4}); i != 0 {
		t.Errorf("expected the highest priority at the head, got index %d", i)
	}
}
