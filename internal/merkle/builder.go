package merkle

import (
	"path/filepath"
	"sort"
	"time"
)

// FileEntry is one leaf the tree is built from: a path relative to the scan
// root plus the (size, mtime) pair the indexer's scan already produced.
// Builder never touches the filesystem itself — internal/indexer supplies
// the filtered, gitignore-aware file list.
type FileEntry struct {
	RelPath string
	Size    int64
	ModTime time.Time
}

// Builder constructs Merkle trees from a flat list of scanned files. Unlike
// the tree-walking version this was adapted from, it does no filesystem
// traversal or ignore-pattern matching of its own: internal/indexer already
// applies extension filters, size limits, and
// github.com/sabhiram/go-gitignore patterns when it produces the FileEntry
// list, so duplicating that logic here would let the two diverge.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles a directory-hierarchy Merkle tree from files, rooted at
// repoPath purely for Tree.RepoPath bookkeeping (no path under repoPath is
// read).
func (b *Builder) Build(repoPath string, files []FileEntry) *Tree {
	root := &Node{Path: "", IsDir: true}
	dirs := map[string]*Node{"": root}

	sorted := make([]FileEntry, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	for _, f := range sorted {
		relPath := filepath.ToSlash(f.RelPath)
		parent := ensureDir(dirs, filepath.ToSlash(filepath.Dir(relPath)))
		leaf := &Node{
			Path:    relPath,
			Size:    f.Size,
			ModTime: f.ModTime,
		}
		leaf.ComputeHash()
		parent.Children = append(parent.Children, leaf)
	}

	var finalize func(*Node)
	finalize = func(n *Node) {
		sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Path < n.Children[j].Path })
		for _, child := range n.Children {
			if child.IsDir {
				finalize(child)
			}
		}
		if n.IsDir {
			n.ComputeHash()
		}
	}
	finalize(root)

	return &Tree{
		Root:      root,
		RepoPath:  repoPath,
		BuildTime: time.Now(),
		FileCount: len(sorted),
	}
}

// ensureDir returns the directory node for dirPath ("." or "" for the
// root), creating it and any missing ancestors.
func ensureDir(dirs map[string]*Node, dirPath string) *Node {
	if dirPath == "." {
		dirPath = ""
	}
	if n, ok := dirs[dirPath]; ok {
		return n
	}

	parentPath := filepath.ToSlash(filepath.Dir(dirPath))
	if parentPath == "." {
		parentPath = ""
	}
	parent := ensureDir(dirs, parentPath)

	node := &Node{Path: dirPath, IsDir: true}
	dirs[dirPath] = node
	parent.Children = append(parent.Children, node)
	return node
}
