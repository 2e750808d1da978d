package store

import "github.com/oriys/shardvm/internal/capability/fstable"

// FSAdapter adapts a Store's FSStore half to fstable.Store, translating
// FSEntry to fstable.Entry. Store can't implement fstable.Store
// directly without importing the capability package, which would put a
// persistence package in the business of knowing about Lua tables.
type FSAdapter struct {
	FS FSStore
}

func NewFSAdapter(s Store) *FSAdapter { return &FSAdapter{FS: s} }

func (a *FSAdapter) Read(vmID, path string, uid int) (string, bool, error) {
	return a.FS.Read(vmID, path, uid)
}

func (a *FSAdapter) Write(vmID, path, content string, mode *int, uid int) error {
	return a.FS.Write(vmID, path, content, mode, uid)
}

func (a *FSAdapter) List(vmID, path string, uid int) ([]fstable.Entry, error) {
	entries, err := a.FS.List(vmID, path, uid)
	if err != nil {
		return nil, err
	}
	out := make([]fstable.Entry, len(entries))
	for i, e := range entries {
		out[i] = fstable.Entry{Name: e.Name, Type: e.Type, Size: e.Size, Owner: e.Owner}
	}
	return out, nil
}

func (a *FSAdapter) Remove(vmID, path string, uid int) error {
	return a.FS.Remove(vmID, path, uid)
}

func (a *FSAdapter) MkdirAll(vmID, path string, uid int) error {
	return a.FS.MkdirAll(vmID, path, uid)
}
