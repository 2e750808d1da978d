// Package nettable registers the `net` capability table: send, recv,
// listen, ip, connect. All operations are in-memory NIC buffer
// manipulation synced with the real router before and after a tick;
// nothing here ever touches a real socket.
package nettable

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/oriys/shardvm/internal/netfabric"
	"github.com/oriys/shardvm/internal/tickctx"
)

// Connector resolves a hostname and allocates an ephemeral connection
// for net.connect, bridging into the shared netfabric.Router /
// netfabric.ConnectionTable for the VM currently ticking.
type Connector interface {
	Resolve(hostname string) (string, bool)
	Connect(vmID string, remoteIP string, remotePort int, pid uint64) (*netfabric.Connection, error)
}

const connectionMeta = "shardvm.connection"

// Register installs the net table and the connection metatable on L.
func Register(L *lua.LState, holder *tickctx.Holder, connector Connector) {
	mt := L.NewTypeMetatable(connectionMeta)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"send": func(L *lua.LState) int {
			ud := L.CheckUserData(1)
			conn, ok := ud.Value.(*netfabric.Connection)
			if !ok {
				return 0
			}
			data := L.CheckString(2)
			if ctx := holder.Get(); ctx != nil {
				ctx.NetOutbound = append(ctx.NetOutbound, netfabric.Packet{
					SrcIP:   ctx.IP,
					SrcPort: conn.LocalPort,
					DstIP:   conn.RemoteIP,
					DstPort: conn.RemotePort,
					Payload: data,
				})
			}
			return 0
		},
		"recv": func(L *lua.LState) int {
			ud := L.CheckUserData(1)
			conn, ok := ud.Value.(*netfabric.Connection)
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			pkt, found := conn.PopInbound()
			if !found {
				L.Push(lua.LNil)
				return 1
			}
			t := L.NewTable()
			L.SetField(t, "src_ip", lua.LString(pkt.SrcIP))
			L.SetField(t, "src_port", lua.LNumber(pkt.SrcPort))
			L.SetField(t, "data", lua.LString(pkt.Payload))
			L.Push(t)
			return 1
		},
	}))

	tbl := L.NewTable()

	tbl.RawSetString("send", L.NewFunction(func(L *lua.LState) int {
		dstIP := L.CheckString(1)
		dstPort := int(L.CheckNumber(2))
		data := L.CheckString(3)
		ctx := holder.Get()
		if ctx == nil || ctx.IP == "" {
			L.RaiseError("net.send: VM has no IP address")
			return 0
		}
		ctx.NetOutbound = append(ctx.NetOutbound, netfabric.Packet{
			SrcIP:   ctx.IP,
			DstIP:   dstIP,
			DstPort: dstPort,
			Payload: data,
		})
		return 0
	}))

	tbl.RawSetString("recv", L.NewFunction(func(L *lua.LState) int {
		ctx := holder.Get()
		if ctx == nil || len(ctx.NetInbound) == 0 {
			L.Push(lua.LNil)
			return 1
		}
		pkt := ctx.NetInbound[0]
		ctx.NetInbound = ctx.NetInbound[1:]
		t := L.NewTable()
		L.SetField(t, "src_ip", lua.LString(pkt.SrcIP))
		L.SetField(t, "src_port", lua.LNumber(pkt.SrcPort))
		L.SetField(t, "dst_port", lua.LNumber(pkt.DstPort))
		L.SetField(t, "data", lua.LString(pkt.Payload))
		L.Push(t)
		return 1
	}))

	tbl.RawSetString("listen", L.NewFunction(func(L *lua.LState) int {
		port := int(L.CheckNumber(1))
		ctx := holder.Get()
		if ctx == nil {
			return 0
		}
		for _, p := range ctx.ListeningPorts {
			if p == port {
				return 0
			}
		}
		ctx.ListeningPorts = append(ctx.ListeningPorts, port)
		return 0
	}))

	tbl.RawSetString("ip", L.NewFunction(func(L *lua.LState) int {
		ctx := holder.Get()
		if ctx == nil || ctx.IP == "" {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(ctx.IP))
		return 1
	}))

	tbl.RawSetString("connect", L.NewFunction(func(L *lua.LState) int {
		host := L.CheckString(1)
		port := int(L.CheckNumber(2))
		ctx := holder.Get()
		if ctx == nil {
			L.RaiseError("net.connect: no active VM context")
			return 0
		}

		ip := host
		if resolved, ok := connector.Resolve(host); ok {
			ip = resolved
		}

		conn, err := connector.Connect(ctx.VMID, ip, port, ctx.CurrentPID)
		if err != nil {
			L.RaiseError("net.connect: %s", err.Error())
			return 0
		}

		ud := L.NewUserData()
		ud.Value = conn
		L.SetMetatable(ud, L.GetTypeMetatable(connectionMeta))
		L.Push(ud)
		return 1
	}))

	L.SetGlobal("net", tbl)
}
