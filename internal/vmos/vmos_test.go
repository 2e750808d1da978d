package vmos

import "testing"

func TestReapRemovesFinishedAndReturnsStdout(t *testing.T) {
	osys := NewVmOs()
	p := NewProcess(1, 0, 0, "root", nil, nil, false)
	p.finished = true
	p.Stdout.Write("done\n")
	osys.AddProcess(p)

	out := osys.Reap()
	if out[1] != "done\n" {
		t.Fatalf("Reap stdout = %q, want %q", out[1], "done\n")
	}
	if len(osys.Processes) != 0 {
		t.Fatalf("expected no processes left, got %d", len(osys.Processes))
	}
	if _, ok := osys.Lookup(1); ok {
		t.Fatal("expected PID 1 to be gone from byPID index")
	}
}

func TestBuildSnapshots(t *testing.T) {
	osys := NewVmOs()
	p := NewProcess(5, 0, 0, "root", nil, nil, false)
	p.Stdout.Write("hello")
	osys.AddProcess(p)

	status, stdout := osys.BuildSnapshots()
	if status[5] != "running" {
		t.Fatalf("status[5] = %q, want running", status[5])
	}
	if stdout[5] != "hello" {
		t.Fatalf("stdout[5] = %q, want hello", stdout[5])
	}
}

func TestForwardChildStdoutIsIncremental(t *testing.T) {
	osys := NewVmOs()
	parent := NewProcess(1, 0, 0, "root", nil, nil, false)
	child := NewProcess(2, 1, 0, "root", nil, nil, true)
	osys.AddProcess(parent)
	osys.AddProcess(child)

	child.Stdout.Write("a")
	osys.ForwardChildStdout()
	child.Stdout.Write("b")
	osys.ForwardChildStdout()

	if got := parent.Stdout.String(); got != "ab" {
		t.Fatalf("parent stdout = %q, want %q", got, "ab")
	}
}
