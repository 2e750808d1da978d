package gameloop

import (
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/oriys/shardvm/internal/capability/ostable"
	"github.com/oriys/shardvm/internal/netfabric"
	"github.com/oriys/shardvm/internal/scriptengine"
	"github.com/oriys/shardvm/internal/tickctx"
	"github.com/oriys/shardvm/internal/vmos"
)

func newTestLoop(t *testing.T) (*Loop, *tickctx.Holder) {
	t.Helper()
	holder := tickctx.NewHolder()
	engine := scriptengine.New(50*time.Millisecond, func(L *lua.LState) {
		ostable.Register(L, holder)
	})
	router := netfabric.NewRouter(nil)
	conns := NewNetConnector(netfabric.NewDNSResolver(), router, 0, 0)
	loop := New(engine, holder, router, &BinRealizer{}, conns, nil)
	return loop, holder
}

func TestTickRunsProcessAndReapsOnFinish(t *testing.T) {
	loop, _ := newTestLoop(t)

	vm := vmos.NewVM("vm-1", "vm-1.local", nil)
	co, err := loop.engine.Compile(`io.write("hello")`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	proc := vmos.NewProcess(1, 0, 0, "root", nil, co, false)
	vm.OS.AddProcess(proc)
	loop.AddVM(vm)

	loop.Tick()

	if !proc.IsFinished() {
		t.Fatal("expected the process to finish within one tick")
	}
	if got := proc.Stdout.String(); got != "hello" {
		t.Fatalf("stdout = %q, want %q", got, "hello")
	}

	loop.Tick()
	if _, ok := vm.OS.Lookup(1); ok {
		t.Fatal("expected the finished process to be reaped after its grace tick")
	}
}

func TestTickRealizesDeferredSpawn(t *testing.T) {
	loop, _ := newTestLoop(t)

	vm := vmos.NewVM("vm-1", "vm-1.local", nil)
	co, err := loop.engine.Compile(`os.spawn("echo", {"hi"}, {})`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	parent := vmos.NewProcess(1, 0, 0, "root", nil, co, false)
	vm.OS.AddProcess(parent)
	loop.AddVM(vm)

	loop.Tick()

	if !parent.IsFinished() {
		t.Fatal("expected the spawning process to finish")
	}
	child, ok := vm.OS.Lookup(2)
	if !ok {
		t.Fatal("expected a child process with PID 2 to have been realized")
	}
	if child.ParentPID != 1 {
		t.Fatalf("child.ParentPID = %d, want 1", child.ParentPID)
	}
}

func TestSpawnCreatesTopLevelProcessOutsideScript(t *testing.T) {
	loop, _ := newTestLoop(t)
	vm := vmos.NewVM("vm-1", "vm-1.local", nil)
	loop.AddVM(vm)

	type spawnResult struct {
		proc *vmos.Process
		err  error
	}
	done := make(chan spawnResult, 1)
	go func() {
		proc, err := loop.Spawn("vm-1", 0, "root", "echo", []string{"hi"})
		done <- spawnResult{proc, err}
	}()

	// Spawn is realized on the VM's own tick goroutine; drive ticks
	// until the queued request lands (the enqueue races the first tick).
	var res spawnResult
	var got bool
	for i := 0; i < 50 && !got; i++ {
		loop.Tick()
		select {
		case res = <-done:
			got = true
		case <-time.After(time.Millisecond):
		}
	}
	if !got {
		t.Fatal("Spawn never completed across 50 ticks")
	}
	if res.err != nil {
		t.Fatalf("Spawn: %v", res.err)
	}
	if _, ok := vm.OS.Lookup(res.proc.PID); !ok {
		t.Fatalf("expected spawned process %d to be registered on the vm", res.proc.PID)
	}

	loop.Tick()
	if !res.proc.IsFinished() {
		t.Fatal("expected the spawned echo process to finish within two ticks")
	}
}

func TestNetConnectorAvoidsListeningPort(t *testing.T) {
	router := netfabric.NewRouter(nil)
	conns := NewNetConnector(netfabric.NewDNSResolver(), router, 100, 101)
	conns.SetVMIP("vm-1", "10.0.0.5")
	router.SetListening("10.0.0.5", 100)

	conn, err := conns.Connect("vm-1", "10.0.0.9", 80, 1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.LocalPort != 101 {
		t.Fatalf("LocalPort = %d, want 101 (100 is occupied by a listener)", conn.LocalPort)
	}
}

func TestSpawnRejectsUnknownVM(t *testing.T) {
	loop, _ := newTestLoop(t)
	if _, err := loop.Spawn("no-such-vm", 0, "root", "echo", nil); err == nil {
		t.Fatal("expected an error spawning on a vm that was never added")
	}
}

func TestTickClearsAndResetsListeningPorts(t *testing.T) {
	holder := tickctx.NewHolder()
	engine := scriptengine.New(50*time.Millisecond, func(L *lua.LState) {
		ostable.Register(L, holder)
		L.SetGlobal("net", L.NewTable())
		nt := L.GetGlobal("net").(*lua.LTable)
		nt.RawSetString("listen", L.NewFunction(func(L *lua.LState) int {
			port := int(L.CheckNumber(1))
			if ctx := holder.Get(); ctx != nil {
				ctx.ListeningPorts = append(ctx.ListeningPorts, port)
			}
			return 0
		}))
	})
	router := netfabric.NewRouter(nil)
	conns := NewNetConnector(netfabric.NewDNSResolver(), router, 0, 0)
	loop := New(engine, holder, router, &BinRealizer{}, conns, nil)

	nic := &netfabric.NIC{IP: "10.0.0.5", Subnet: "10.0.0.0/24"}
	vm := vmos.NewVM("vm-1", "vm-1.local", nic)
	co, err := engine.Compile(`net.listen(22)`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	vm.OS.AddProcess(vmos.NewProcess(1, 0, 0, "root", nil, co, false))
	loop.AddVM(vm)

	loop.Tick()

	if !router.IsListening("10.0.0.5", 22) {
		t.Fatal("expected port 22 to be registered as listening after the tick")
	}
}
