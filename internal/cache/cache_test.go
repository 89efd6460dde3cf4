package cache

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/handiism/cloudreve-downloader/internal/model"
)

func TestKey(t *testing.T) {
	share := model.ShareReference{BaseURL: "https://host", Code: "ABC"}

	// md5("https://host:ABC")
	want := "119aab637b58c9e3356e30817b702307"
	if got := Key(share); got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if Key(share) == Key(model.ShareReference{BaseURL: "https://host", Code: "ABD"}) {
		t.Error("different shares produced the same key")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "cache"))
	key := Key(model.ShareReference{BaseURL: "https://host", Code: "ABC"})

	record := &model.CacheRecord{
		Files: []model.FileEntry{
			{Path: "/a.txt", Size: 1},
			{Path: "/dir/b.bin", Size: 2048},
		},
		Links: model.LinkTable{
			"/a.txt":     "https://host/dl/1",
			"/dir/b.bin": "https://host/dl/2",
		},
	}

	if err := store.Save(key, record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, ok, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ok {
		t.Fatal("Load reported absent after Save")
	}
	if !reflect.DeepEqual(loaded, record) {
		t.Errorf("Load() = %+v, want %+v", loaded, record)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())

	record, ok, err := store.Load("never-saved")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || record != nil {
		t.Errorf("Load() = %v, %v; want nil, false", record, ok)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := os.WriteFile(filepath.Join(dir, "broken"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	record, ok, err := store.Load("broken")
	if ok || record != nil {
		t.Errorf("Load() = %v, %v; want nil, false", record, ok)
	}
	if err == nil {
		t.Error("expected the decode error to be reported")
	}
}

func TestStore_Remove(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save("k", &model.CacheRecord{Links: model.LinkTable{}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove("k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := store.Load("k"); ok {
		t.Error("record still present after Remove")
	}
	if err := store.Remove("k"); err != nil {
		t.Errorf("Remove of missing key returned %v", err)
	}
}
