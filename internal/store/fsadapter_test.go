package store

import (
	"context"
	"errors"
	"testing"

	"github.com/oriys/shardvm/internal/capability/fstable"
)

// fakeStore is a minimal in-memory Store used to test FSAdapter and
// CachingStore without a real Postgres connection. Only the filesystem
// and VM/user methods these tests exercise are implemented; everything
// else returns an error if ever called.
type fakeStore struct {
	files map[string]string
	vms   map[string]*VMRecord
	users map[string]*UserRecord

	getVMCalls  int
	getUserCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files: make(map[string]string),
		vms:   make(map[string]*VMRecord),
		users: make(map[string]*UserRecord),
	}
}

func (f *fakeStore) Read(vmID, path string, uid int) (string, bool, error) {
	content, ok := f.files[vmID+path]
	return content, ok, nil
}

func (f *fakeStore) Write(vmID, path, content string, mode *int, uid int) error {
	f.files[vmID+path] = content
	return nil
}

func (f *fakeStore) List(vmID, path string, uid int) ([]FSEntry, error) {
	return []FSEntry{{Name: "motd", Type: "file", Size: 4, Owner: "root"}}, nil
}

func (f *fakeStore) Remove(vmID, path string, uid int) error {
	delete(f.files, vmID+path)
	return nil
}

func (f *fakeStore) MkdirAll(vmID, path string, uid int) error { return nil }

func (f *fakeStore) Close() error                        { return nil }
func (f *fakeStore) Ping(ctx context.Context) error       { return nil }

func (f *fakeStore) CreateVM(ctx context.Context, rec *VMRecord) error {
	f.vms[rec.ID] = rec
	return nil
}

func (f *fakeStore) GetVM(ctx context.Context, id string) (*VMRecord, error) {
	f.getVMCalls++
	rec, ok := f.vms[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return rec, nil
}

func (f *fakeStore) ListVMs(ctx context.Context) ([]*VMRecord, error) { return nil, nil }
func (f *fakeStore) DeleteVM(ctx context.Context, id string) error {
	delete(f.vms, id)
	return nil
}

func (f *fakeStore) CreateUser(ctx context.Context, rec *UserRecord) error {
	f.users[rec.Username] = rec
	return nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	f.getUserCalls++
	rec, ok := f.users[username]
	if !ok {
		return nil, errors.New("not found")
	}
	return rec, nil
}

func (f *fakeStore) CreatePlayer(ctx context.Context, rec *PlayerRecord) error { return nil }
func (f *fakeStore) GetPlayer(ctx context.Context, id string) (*PlayerRecord, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStore) CreateFaction(ctx context.Context, rec *FactionRecord) error { return nil }
func (f *fakeStore) ListFactions(ctx context.Context) ([]*FactionRecord, error)  { return nil, nil }
func (f *fakeStore) CreateEmailAccount(ctx context.Context, rec *EmailAccountRecord) error {
	return nil
}
func (f *fakeStore) SendEmail(ctx context.Context, rec *EmailRecord) error { return nil }
func (f *fakeStore) ListEmails(ctx context.Context, address string, limit int) ([]*EmailRecord, error) {
	return nil, nil
}
func (f *fakeStore) MarkEmailRead(ctx context.Context, id string) error { return nil }
func (f *fakeStore) UnreadEmailCount(ctx context.Context, address string) (int, error) {
	return 0, nil
}
func (f *fakeStore) CreateWallet(ctx context.Context, rec *WalletRecord) error { return nil }
func (f *fakeStore) GetWallet(ctx context.Context, playerID, kind string) (*WalletRecord, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStore) CreateWalletCard(ctx context.Context, rec *WalletCardRecord) error { return nil }
func (f *fakeStore) GetWalletCardByNumber(ctx context.Context, cardNumber string) (*WalletCardRecord, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStore) CreateCardInvoice(ctx context.Context, rec *CardInvoiceRecord) error { return nil }
func (f *fakeStore) GetCardInvoice(ctx context.Context, id string) (*CardInvoiceRecord, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStore) MarkInvoicePaid(ctx context.Context, id string) error { return nil }
func (f *fakeStore) TotalCollected(ctx context.Context, destinationKey string) (int64, error) {
	return 0, nil
}

func TestFSAdapterDelegatesReadWrite(t *testing.T) {
	fs := newFakeStore()
	adapter := NewFSAdapter(fs)

	if err := adapter.Write("vm-1", "/etc/motd", "hello", nil, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	content, ok, err := adapter.Read("vm-1", "/etc/motd", 0)
	if err != nil || !ok || content != "hello" {
		t.Fatalf("Read = (%q, %v, %v), want (hello, true, nil)", content, ok, err)
	}
}

func TestFSAdapterConvertsEntryType(t *testing.T) {
	fs := newFakeStore()
	adapter := NewFSAdapter(fs)

	var _ fstable.Store = adapter // must satisfy fstable.Store at compile time

	entries, err := adapter.List("vm-1", "/etc", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Name != "motd" || entries[0].Type != "file" {
		t.Fatalf("entries[0] = %+v, want Name=motd Type=file", entries[0])
	}
}
