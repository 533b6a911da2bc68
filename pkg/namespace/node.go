package namespace

import "time"

// RootID is the reserved identifier of the root folder.
//
// It never appears as a path segment: the root is addressed by "/".
const RootID = "root"

// RootName is the display name given to a freshly bootstrapped root.
const RootName = "root"

// Kind identifies the variant of a Node in persisted records.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// Meta holds the attributes shared by every node variant.
type Meta struct {
	// ID is the opaque, immutable identifier of the node
	ID string

	// Name is the display name (may change through Rename)
	Name string

	// ParentID is the containing folder; empty only for the root
	ParentID string

	// CreatedAt is the time the node entered the tree
	CreatedAt time.Time

	// Trashed is true while the node (or one of its ancestors) sits in the trash
	Trashed bool
}

// Info returns a copy of the shared attributes.
func (m Meta) Info() Meta { return m }

// Node is a member of the namespace tree: either a *Folder or a *File.
//
// The set of variants is closed. Callers discriminate with a type switch:
//
//	switch n := node.(type) {
//	case *namespace.Folder:
//	case *namespace.File:
//	}
//
// Nodes handed out by the Tree are copies; mutating them has no effect on
// the tree.
type Node interface {
	Info() Meta
	Kind() Kind
	sealed()
}

// Folder is a container node.
type Folder struct {
	Meta

	// children is only populated on folders owned by a Tree
	children map[string]Node
}

func (*Folder) sealed()    {}
func (*Folder) Kind() Kind { return KindFolder }

// IsRoot reports whether the folder is the namespace root.
func (f *Folder) IsRoot() bool { return f.ID == RootID }

func (f *Folder) clone() *Folder {
	return &Folder{Meta: f.Meta}
}

// BlobRef is the opaque locator of a file's bytes in the external blob store.
//
// An empty SourceChannel means the content was copied into the drive's own
// storage channel. A non-empty SourceChannel marks a fast-imported file whose
// bytes remain in a foreign channel the drive does not control.
type BlobRef struct {
	MessageID     int64
	SourceChannel string
}

// External reports whether the blob lives outside the drive's own storage.
func (b BlobRef) External() bool { return b.SourceChannel != "" }

// File is a leaf node referencing content in the external blob store.
type File struct {
	Meta

	// Blob is set at creation and never changes
	Blob BlobRef

	// Size in bytes
	Size int64

	// Duration in seconds, 0 for non-media content
	Duration int64
}

func (*File) sealed()    {}
func (*File) Kind() Kind { return KindFile }

func (f *File) clone() *File {
	c := *f
	return &c
}

// cloneNode returns a detached copy of n suitable for handing to callers.
func cloneNode(n Node) Node {
	switch v := n.(type) {
	case *Folder:
		return v.clone()
	case *File:
		return v.clone()
	}
	return nil
}

func metaOf(n Node) *Meta {
	switch v := n.(type) {
	case *Folder:
		return &v.Meta
	case *File:
		return &v.Meta
	}
	return nil
}
