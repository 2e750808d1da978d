// Package cardtable registers the `card` capability table backing
// in-world payment terminals: create_invoice, pay_invoice,
// total_collected. Every function returns (value) on success or
// (nil/false, "message") on failure rather than raising, so a script
// never sees an internal error type.
package cardtable

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/oriys/shardvm/internal/cardsvc"
)

// Register installs the card table on L, backed by svc.
func Register(L *lua.LState, svc *cardsvc.Service) {
	tbl := L.NewTable()

	tbl.RawSetString("create_invoice", L.NewFunction(func(L *lua.LState) int {
		destinationKey := L.CheckString(1)
		amountCents := int64(L.CheckNumber(2))

		id, err := svc.CreateInvoice(destinationKey, amountCents)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LString(id))
		return 1
	}))

	tbl.RawSetString("pay_invoice", L.NewFunction(func(L *lua.LState) int {
		invoiceID := L.CheckString(1)
		cardNumber := L.CheckString(2)
		cvv := L.CheckString(3)
		expiryMonth := int(L.CheckNumber(4))
		expiryYear := int(L.CheckNumber(5))
		holderName := L.CheckString(6)

		if err := svc.PayInvoice(invoiceID, cardNumber, cvv, expiryMonth, expiryYear, holderName); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}))

	tbl.RawSetString("total_collected", L.NewFunction(func(L *lua.LState) int {
		destinationKey := L.CheckString(1)
		total, err := svc.TotalCollected(destinationKey)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LNumber(total))
		return 1
	}))

	L.SetGlobal("card", tbl)
}
