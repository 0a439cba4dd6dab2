package imageref

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
)

// Asset is an uploaded or re-encoded file held in memory.
type Asset struct {
	Name string
	Data []byte
	Mime string
}

// AssetInfo describes an asset without its bytes.
type AssetInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int    `json:"size"`
	Ref  string `json:"ref"`
}

// Assets is the same-origin store. Refs of the form "asset:<id>" resolve
// against it.
type Assets struct {
	mu     sync.RWMutex
	assets map[string]*Asset
}

func NewAssets() *Assets {
	return &Assets{assets: make(map[string]*Asset)}
}

// Add stores data and returns its id.
func (am *Assets) Add(name string, data []byte, mimeType string) string {
	id := randomID()
	am.mu.Lock()
	am.assets[id] = &Asset{Name: name, Data: data, Mime: mimeType}
	am.mu.Unlock()
	return id
}

// Put stores data under a caller-chosen id, replacing any previous asset.
func (am *Assets) Put(id, name string, data []byte, mimeType string) {
	am.mu.Lock()
	am.assets[id] = &Asset{Name: name, Data: data, Mime: mimeType}
	am.mu.Unlock()
}

func (am *Assets) Get(id string) (*Asset, bool) {
	am.mu.RLock()
	a, ok := am.assets[id]
	am.mu.RUnlock()
	return a, ok
}

// List returns every asset sorted by name.
func (am *Assets) List() []AssetInfo {
	am.mu.RLock()
	defer am.mu.RUnlock()
	result := make([]AssetInfo, 0, len(am.assets))
	for id, a := range am.assets {
		result = append(result, AssetInfo{ID: id, Name: a.Name, Mime: a.Mime, Size: len(a.Data), Ref: AssetRef(id)})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (am *Assets) Remove(id string) bool {
	am.mu.Lock()
	defer am.mu.Unlock()
	if _, ok := am.assets[id]; !ok {
		return false
	}
	delete(am.assets, id)
	return true
}

func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
