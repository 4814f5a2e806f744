// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
	"github.com/AleutianAI/AleutianReview/services/review/index"
)

// openTestStore opens an in-memory store. Cleanup closes the database.
func openTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	db, err := OpenDB(InMemoryConfig())
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSnapshotStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	return store
}

func makeSnapshot(t *testing.T, commit string, names ...string) *index.Snapshot {
	t.Helper()
	ix := index.NewIndex()
	b := ix.Begin("")
	defs := make([]*extract.SymbolDefinition, 0, len(names))
	for i, name := range names {
		defs = append(defs, &extract.SymbolDefinition{
			ID:            name,
			QualifiedName: "pkg." + name,
			ShortName:     name,
			File:          "pkg/mod.py",
			Language:      "python",
			StartLine:     i + 1,
			ReturnKind:    ast.ReturnKindValue,
			Fingerprint:   extract.Fingerprint(nil, ast.ReturnKindValue),
			CommitSHA:     commit,
		})
	}
	if err := b.Update("pkg/mod.py", defs); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap, err := b.Publish(commit)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return snap
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	snap := makeSnapshot(t, "c1", "alpha")

	meta, err := store.Save(ctx, "acme/billing", snap)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.CommitSHA != "c1" || meta.Definitions != 1 {
		t.Fatalf("meta = %+v", meta)
	}
	if meta.ContentHash == "" || meta.CompressedSize == 0 {
		t.Fatalf("missing integrity fields: %+v", meta)
	}

	loaded, loadedMeta, err := store.Load(ctx, "acme/billing", "c1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loadedMeta.ContentHash != meta.ContentHash {
		t.Fatal("metadata changed across round trip")
	}
	defs := loaded.LookupShortName("alpha")
	if len(defs) != 1 || defs[0].QualifiedName != "pkg.alpha" {
		t.Fatalf("defs = %+v", defs)
	}
	if loaded.CommitSHA() != "c1" {
		t.Fatalf("commit = %s", loaded.CommitSHA())
	}
}

func TestLoadLatest_FollowsPointer(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "acme/billing", makeSnapshot(t, "c1", "alpha")); err != nil {
		t.Fatalf("Save c1: %v", err)
	}
	if _, err := store.Save(ctx, "acme/billing", makeSnapshot(t, "c2", "alpha", "beta")); err != nil {
		t.Fatalf("Save c2: %v", err)
	}

	snap, meta, err := store.LoadLatest(ctx, "acme/billing")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if meta.CommitSHA != "c2" || snap.Stats().Definitions != 2 {
		t.Fatalf("latest = %+v (%d defs)", meta, snap.Stats().Definitions)
	}
}

func TestLoad_NotFound(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Load(ctx, "acme/billing", "missing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
	if _, _, err := store.LoadLatest(ctx, "never/indexed"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestList_NewestFirstAndScoped(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "acme/billing", makeSnapshot(t, "c1", "alpha")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save(ctx, "acme/billing", makeSnapshot(t, "c2", "alpha")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save(ctx, "other/repo", makeSnapshot(t, "x1", "gamma")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	metas, err := store.List(ctx, "acme/billing", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("list = %d entries", len(metas))
	}
	for _, m := range metas {
		if m.RepoID != "acme/billing" {
			t.Fatalf("foreign repo in list: %+v", m)
		}
	}

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d entries", len(all))
	}
}

func TestDelete_RemovesLatestPointer(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "acme/billing", makeSnapshot(t, "c1", "alpha")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "acme/billing", "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, _, err := store.Load(ctx, "acme/billing", "c1"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
	if _, _, err := store.LoadLatest(ctx, "acme/billing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSave_InputValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "", makeSnapshot(t, "c1", "alpha")); err == nil {
		t.Fatal("expected error for empty repo ID")
	}
	if _, err := store.Save(ctx, "acme/billing", nil); err == nil {
		t.Fatal("expected error for nil snapshot")
	}
}
