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
	"sort"

	"github.com/AleutianAI/AleutianReview/services/review/extract"
)

// Snapshot is the symbol index of one commit.
//
// Description:
//
//	A Snapshot holds two-level lookups (short name and qualified name) plus
//	a per-file map used for incremental updates. Snapshots are immutable
//	once published: review runs pin one snapshot and read it lock-free for
//	the whole run, so a concurrent indexing of a newer commit can never
//	produce a torn read.
//
// Thread Safety:
//
//	Safe for concurrent use after publication. All mutation happens on an
//	unpublished Builder.
type Snapshot struct {
	commitSHA   string
	byShort     map[string][]*extract.SymbolDefinition
	byQualified map[string][]*extract.SymbolDefinition
	byFile      map[string][]*extract.SymbolDefinition
	total       int
}

// SnapshotStats summarizes the contents of a snapshot.
type SnapshotStats struct {
	CommitSHA   string `json:"commit_sha"`
	Definitions int    `json:"definitions"`
	Files       int    `json:"files"`
	ShortNames  int    `json:"short_names"`
}

// CommitSHA returns the commit this snapshot was published for.
func (s *Snapshot) CommitSHA() string {
	return s.commitSHA
}

// LookupShortName returns all definitions sharing a short name.
//
// The returned slice is a defensive copy; callers may reorder it.
func (s *Snapshot) LookupShortName(name string) []*extract.SymbolDefinition {
	return copyDefs(s.byShort[name])
}

// LookupQualified returns all definitions with the given qualified name.
// More than one result means an overload set.
func (s *Snapshot) LookupQualified(name string) []*extract.SymbolDefinition {
	return copyDefs(s.byQualified[name])
}

// DefsInFile returns the definitions declared in one file.
func (s *Snapshot) DefsInFile(path string) []*extract.SymbolDefinition {
	return copyDefs(s.byFile[path])
}

// Stats returns summary counts for the snapshot.
func (s *Snapshot) Stats() SnapshotStats {
	return SnapshotStats{
		CommitSHA:   s.commitSHA,
		Definitions: s.total,
		Files:       len(s.byFile),
		ShortNames:  len(s.byShort),
	}
}

// SerializableSnapshot is the flat persistence form of a snapshot.
//
// Definitions are sorted by file then start line so the serialized form is
// deterministic for a given snapshot.
type SerializableSnapshot struct {
	SchemaVersion string                      `json:"schema_version"`
	CommitSHA     string                      `json:"commit_sha"`
	Definitions   []*extract.SymbolDefinition `json:"definitions"`
}

// SnapshotSchemaVersion is the serialization schema version.
const SnapshotSchemaVersion = "1"

// ToSerializable flattens the snapshot for persistence.
func (s *Snapshot) ToSerializable() *SerializableSnapshot {
	defs := make([]*extract.SymbolDefinition, 0, s.total)
	for _, fileDefs := range s.byFile {
		defs = append(defs, fileDefs...)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].File != defs[j].File {
			return defs[i].File < defs[j].File
		}
		if defs[i].StartLine != defs[j].StartLine {
			return defs[i].StartLine < defs[j].StartLine
		}
		return defs[i].QualifiedName < defs[j].QualifiedName
	})
	return &SerializableSnapshot{
		SchemaVersion: SnapshotSchemaVersion,
		CommitSHA:     s.commitSHA,
		Definitions:   defs,
	}
}

// FromSerializable rebuilds a published snapshot from its flat form.
func FromSerializable(ss *SerializableSnapshot) *Snapshot {
	snap := newEmptySnapshot(ss.CommitSHA)
	for _, def := range ss.Definitions {
		snap.insert(def)
	}
	return snap
}

func newEmptySnapshot(commitSHA string) *Snapshot {
	return &Snapshot{
		commitSHA:   commitSHA,
		byShort:     make(map[string][]*extract.SymbolDefinition),
		byQualified: make(map[string][]*extract.SymbolDefinition),
		byFile:      make(map[string][]*extract.SymbolDefinition),
	}
}

// insert adds one definition. Only valid before publication.
func (s *Snapshot) insert(def *extract.SymbolDefinition) {
	s.byShort[def.ShortName] = append(s.byShort[def.ShortName], def)
	s.byQualified[def.QualifiedName] = append(s.byQualified[def.QualifiedName], def)
	s.byFile[def.File] = append(s.byFile[def.File], def)
	s.total++
}

// removeFile drops every definition declared in the given file. Only valid
// before publication.
func (s *Snapshot) removeFile(path string) {
	old := s.byFile[path]
	if len(old) == 0 {
		return
	}
	stale := make(map[*extract.SymbolDefinition]bool, len(old))
	for _, def := range old {
		stale[def] = true
	}
	for _, def := range old {
		s.byShort[def.ShortName] = pruneDefs(s.byShort[def.ShortName], stale)
		if len(s.byShort[def.ShortName]) == 0 {
			delete(s.byShort, def.ShortName)
		}
		s.byQualified[def.QualifiedName] = pruneDefs(s.byQualified[def.QualifiedName], stale)
		if len(s.byQualified[def.QualifiedName]) == 0 {
			delete(s.byQualified, def.QualifiedName)
		}
	}
	delete(s.byFile, path)
	s.total -= len(old)
}

// clone makes an independent copy of the snapshot's maps. Definition
// pointers are shared; definitions are immutable after extraction.
func (s *Snapshot) clone(commitSHA string) *Snapshot {
	out := &Snapshot{
		commitSHA:   commitSHA,
		byShort:     make(map[string][]*extract.SymbolDefinition, len(s.byShort)),
		byQualified: make(map[string][]*extract.SymbolDefinition, len(s.byQualified)),
		byFile:      make(map[string][]*extract.SymbolDefinition, len(s.byFile)),
		total:       s.total,
	}
	for name, defs := range s.byShort {
		out.byShort[name] = copyDefs(defs)
	}
	for name, defs := range s.byQualified {
		out.byQualified[name] = copyDefs(defs)
	}
	for file, defs := range s.byFile {
		out.byFile[file] = copyDefs(defs)
	}
	return out
}

func copyDefs(src []*extract.SymbolDefinition) []*extract.SymbolDefinition {
	if len(src) == 0 {
		return nil
	}
	out := make([]*extract.SymbolDefinition, len(src))
	copy(out, src)
	return out
}

func pruneDefs(defs []*extract.SymbolDefinition, stale map[*extract.SymbolDefinition]bool) []*extract.SymbolDefinition {
	kept := defs[:0]
	for _, d := range defs {
		if !stale[d] {
			kept = append(kept, d)
		}
	}
	return kept
}
