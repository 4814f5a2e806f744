// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
)

func makeDef(file, shortName, commit string, line int) *extract.SymbolDefinition {
	params := []ast.Param{{Name: "a"}}
	return &extract.SymbolDefinition{
		ID:            ast.GenerateID(file, line, shortName),
		QualifiedName: extract.PathNamespace(file) + "." + shortName,
		ShortName:     shortName,
		File:          file,
		Language:      "python",
		StartLine:     line,
		EndLine:       line + 2,
		Params:        params,
		ReturnKind:    ast.ReturnKindValue,
		Visibility:    extract.VisibilityPublic,
		Fingerprint:   extract.Fingerprint(params, ast.ReturnKindValue),
		CommitSHA:     commit,
	}
}

func TestIndex_PublishAndLookup(t *testing.T) {
	ix := NewIndex()

	b := ix.Begin("")
	if err := b.Update("billing/pay.py", []*extract.SymbolDefinition{
		makeDef("billing/pay.py", "charge", "c1", 10),
		makeDef("billing/pay.py", "refund", "c1", 30),
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap, err := b.Publish("c1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := len(snap.LookupShortName("charge")); got != 1 {
		t.Errorf("expected 1 charge definition, got %d", got)
	}
	if got := len(snap.LookupQualified("billing.pay.refund")); got != 1 {
		t.Errorf("expected qualified lookup hit, got %d", got)
	}
	if current := ix.Current(); current != snap {
		t.Error("published snapshot should be current")
	}
	if _, ok := ix.At("c1"); !ok {
		t.Error("expected At(c1) to find the snapshot")
	}
	if _, ok := ix.At("missing"); ok {
		t.Error("unexpected snapshot for unknown commit")
	}
}

// Updating a file must remove its previous definitions atomically, leaving
// no stale entries in any lookup map.
func TestBuilder_Update_NoStaleEntries(t *testing.T) {
	ix := NewIndex()
	b := ix.Begin("")
	_ = b.Update("a.py", []*extract.SymbolDefinition{
		makeDef("a.py", "old_name", "c1", 5),
	})
	first, err := b.Publish("c1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	b2 := ix.Begin("c1")
	_ = b2.Update("a.py", []*extract.SymbolDefinition{
		makeDef("a.py", "new_name", "c2", 5),
	})
	second, err := b2.Publish("c2")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(second.LookupShortName("old_name")) != 0 {
		t.Error("stale short-name entry survived file update")
	}
	if len(second.LookupQualified("a.old_name")) != 0 {
		t.Error("stale qualified-name entry survived file update")
	}
	if len(second.LookupShortName("new_name")) != 1 {
		t.Error("new definition missing after update")
	}

	// The earlier snapshot must be untouched.
	if len(first.LookupShortName("old_name")) != 1 {
		t.Error("published snapshot mutated by later builder")
	}
}

func TestBuilder_Update_EmptyClearsFile(t *testing.T) {
	ix := NewIndex()
	b := ix.Begin("")
	_ = b.Update("a.py", []*extract.SymbolDefinition{makeDef("a.py", "f", "c1", 1)})
	_, _ = b.Publish("c1")

	b2 := ix.Begin("c1")
	_ = b2.Update("a.py", nil)
	snap, _ := b2.Publish("c2")

	if snap.Stats().Definitions != 0 {
		t.Errorf("expected empty snapshot, got %d definitions", snap.Stats().Definitions)
	}
}

func TestBuilder_PublishTwiceFails(t *testing.T) {
	ix := NewIndex()
	b := ix.Begin("")
	if _, err := b.Publish("c1"); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if _, err := b.Publish("c2"); err != ErrBuilderPublished {
		t.Errorf("expected ErrBuilderPublished, got %v", err)
	}
	if err := b.Update("a.py", nil); err != ErrBuilderPublished {
		t.Errorf("expected ErrBuilderPublished from Update, got %v", err)
	}
}

func TestIndex_Retention(t *testing.T) {
	ix := NewIndex(WithMaxSnapshots(2))
	for i := 0; i < 5; i++ {
		b := ix.Begin("")
		_ = b.Update("a.py", []*extract.SymbolDefinition{
			makeDef("a.py", "f", fmt.Sprintf("c%d", i), 1),
		})
		if _, err := b.Publish(fmt.Sprintf("c%d", i)); err != nil {
			t.Fatalf("publish c%d: %v", i, err)
		}
	}

	commits := ix.Commits()
	if len(commits) != 2 {
		t.Fatalf("expected 2 retained snapshots, got %d: %v", len(commits), commits)
	}
	if _, ok := ix.At("c0"); ok {
		t.Error("oldest snapshot should have been trimmed")
	}
	if _, ok := ix.At("c4"); !ok {
		t.Error("newest snapshot must be retained")
	}
}

// A reader that pinned a snapshot must see a stable view while writers
// publish newer commits concurrently.
func TestIndex_SnapshotIsolation(t *testing.T) {
	ix := NewIndex()
	b := ix.Begin("")
	_ = b.Update("a.py", []*extract.SymbolDefinition{makeDef("a.py", "f", "base", 1)})
	pinned, err := b.Publish("base")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Writer: keep publishing new commits with changing contents.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			nb := ix.Begin("")
			_ = nb.Update("a.py", []*extract.SymbolDefinition{
				makeDef("a.py", fmt.Sprintf("g%d", i), fmt.Sprintf("h%d", i), 1),
			})
			_, _ = nb.Publish(fmt.Sprintf("h%d", i))
		}
		close(stop)
	}()

	// Readers: the pinned snapshot must always show exactly the base view.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if len(pinned.LookupShortName("f")) != 1 {
					t.Error("pinned snapshot lost its definition")
					return
				}
				if pinned.Stats().Definitions != 1 {
					t.Error("pinned snapshot size changed")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestSnapshot_SerializableRoundTrip(t *testing.T) {
	ix := NewIndex()
	b := ix.Begin("")
	_ = b.Update("b.py", []*extract.SymbolDefinition{makeDef("b.py", "g", "c1", 4)})
	_ = b.Update("a.py", []*extract.SymbolDefinition{
		makeDef("a.py", "f", "c1", 9),
		makeDef("a.py", "e", "c1", 2),
	})
	snap, _ := b.Publish("c1")

	ss := snap.ToSerializable()
	if ss.CommitSHA != "c1" || len(ss.Definitions) != 3 {
		t.Fatalf("unexpected serializable form: %+v", ss)
	}
	// Deterministic order: by file, then start line.
	if ss.Definitions[0].File != "a.py" || ss.Definitions[0].StartLine != 2 {
		t.Errorf("unexpected first definition: %+v", ss.Definitions[0])
	}

	restored := FromSerializable(ss)
	if restored.CommitSHA() != "c1" {
		t.Errorf("restored commit = %q", restored.CommitSHA())
	}
	if len(restored.LookupShortName("g")) != 1 {
		t.Error("restored snapshot missing definition")
	}
	if restored.Stats() != snap.Stats() {
		t.Errorf("stats mismatch: %+v vs %+v", restored.Stats(), snap.Stats())
	}
}
