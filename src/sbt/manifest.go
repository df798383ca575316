package sbt

import (
	"bytes"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/orcaman/concurrent-map"
	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/signature"
)

const (
	// ManifestExt is the extension of a saved tree
	ManifestExt = ".sbt.json"

	manifestVersion = 6
	manifestKind    = "decoct-sbt"
	factoryClass    = "BloomFactory"
)

// manifest is the JSON description of a saved tree
type manifest struct {
	D        int              `json:"d"`
	Version  int              `json:"version"`
	Kind     string           `json:"kind"`
	Storage  storageInfo      `json:"storage"`
	Factory  factoryInfo      `json:"factory"`
	Molecule string           `json:"molecule"`
	Nodes    map[int]nodeInfo `json:"nodes"`
	Leaves   map[int]leafInfo `json:"leaves"`
}

type storageInfo struct {
	Backend string            `json:"backend"`
	Args    map[string]string `json:"args"`
}

// factoryInfo args are the k-mer size, Bloom filter size and number of hash functions
type factoryInfo struct {
	Class string   `json:"class"`
	Args  []uint64 `json:"args"`
}

type nodeInfo struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Children []int  `json:"children"`
	Parent   int    `json:"parent"`
}

type leafInfo struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Md5sum   string `json:"md5sum"`
	Parent   int    `json:"parent"`
}

// splitManifestPath returns the directory and base name of a tree, the manifest is dir/base.sbt.json
func splitManifestPath(path string) (string, string) {
	return filepath.Dir(path), strings.TrimSuffix(filepath.Base(path), ManifestExt)
}

// ManifestPath returns the manifest path for a tree name, adding the extension if needed
func ManifestPath(name string) string {
	if strings.HasSuffix(name, ManifestExt) {
		return name
	}
	return name + ManifestExt
}

// StorageDir returns the directory holding the node blobs of a saved tree
func StorageDir(path string) string {
	dir, base := splitManifestPath(ManifestPath(path))
	return filepath.Join(dir, ".sbt."+base)
}

// Save writes the tree to name.sbt.json, with the node blobs in .sbt.name alongside it
func (t *SBT) Save(name string) error {
	path := ManifestPath(name)
	dir, base := splitManifestPath(path)
	storage := NewFSStorage(dir, ".sbt."+base)
	m := &manifest{
		D:        2,
		Version:  manifestVersion,
		Kind:     manifestKind,
		Storage:  storageInfo{Backend: storage.Backend(), Args: map[string]string{"path": storage.Path()}},
		Factory:  factoryInfo{Class: factoryClass, Args: []uint64{uint64(t.ksize), uint64(t.bfSize), uint64(t.nHashes)}},
		Molecule: t.molecule.String(),
		Nodes:    make(map[int]nodeInfo),
		Leaves:   make(map[int]leafInfo),
	}
	for idx, n := range t.nodes {
		if n.kind == leafNode {
			sig, err := t.LeafSignature(idx)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := signature.Save(&buf, []*signature.Signature{sig}); err != nil {
				return errors.Wrapf(ErrStorage, "could not encode leaf %s: %v", n.name, err)
			}
			if err := storage.Save(n.md5, buf.Bytes()); err != nil {
				return err
			}
			m.Leaves[idx] = leafInfo{Name: n.name, Filename: n.md5, Md5sum: n.md5, Parent: n.parent}
			continue
		}
		data, err := n.filter.MarshalBinary()
		if err != nil {
			return errors.Wrapf(ErrStorage, "could not encode %s: %v", n.name, err)
		}

		// internal filters change as the tree grows, so they are keyed by content
		filename := fmt.Sprintf("%s.%x.bf", n.name, md5.Sum(data))
		if err := storage.Save(filename, data); err != nil {
			return err
		}
		m.Nodes[idx] = nodeInfo{Name: n.name, Filename: filename, Children: n.children[:], Parent: n.parent}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(ErrStorage, err.Error())
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(ErrStorage, "could not write manifest: %v", err)
	}
	t.storage = storage
	t.location = path
	return nil
}

// Load reads a saved tree. Internal filters are read straight away, leaf signatures are read when first needed.
func Load(path string) (*SBT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrStorage, "could not read manifest: %v", err)
	}
	m := &manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrapf(ErrIndexFormat, "%s: %v", path, err)
	}
	switch {
	case m.D != 2:
		return nil, errors.Wrapf(ErrIndexFormat, "%s: only binary trees are supported (d=%d)", path, m.D)
	case m.Version != manifestVersion || m.Kind != manifestKind:
		return nil, errors.Wrapf(ErrIndexFormat, "%s: unsupported manifest (%s version %d)", path, m.Kind, m.Version)
	case m.Storage.Backend != "FSStorage":
		return nil, errors.Wrapf(ErrIndexFormat, "%s: unsupported storage backend %q", path, m.Storage.Backend)
	case m.Factory.Class != factoryClass || len(m.Factory.Args) != 3:
		return nil, errors.Wrapf(ErrIndexFormat, "%s: bad filter factory", path)
	}
	molecule, err := minhash.ParseMolecule(m.Molecule)
	if err != nil {
		return nil, errors.Wrapf(ErrIndexFormat, "%s: %v", path, err)
	}
	t := &SBT{
		ksize:     uint32(m.Factory.Args[0]),
		molecule:  molecule,
		bfSize:    uint(m.Factory.Args[1]),
		nHashes:   uint(m.Factory.Args[2]),
		nodes:     make([]*node, len(m.Nodes)+len(m.Leaves)),
		storage:   NewFSStorage(filepath.Dir(path), m.Storage.Args["path"]),
		location:  path,
		leafCache: cmap.New(),
	}
	placeNode := func(idx int, n *node) error {
		if idx < 0 || idx >= len(t.nodes) || t.nodes[idx] != nil {
			return errors.Wrapf(ErrIndexFormat, "%s: node count mismatch at node %d", path, idx)
		}
		t.nodes[idx] = n
		return nil
	}
	for idx, info := range m.Nodes {
		if len(info.Children) != 2 {
			return nil, errors.Wrapf(ErrIndexFormat, "%s: node %d does not have two child slots", path, idx)
		}
		blob, err := t.storage.Load(info.Filename)
		if err != nil {
			return nil, err
		}
		filter := &Filter{}
		if err := filter.UnmarshalBinary(blob); err != nil {
			return nil, errors.Wrapf(err, "%s: node %d", path, idx)
		}
		if filter.Cap() != t.bfSize || filter.K() != t.nHashes {
			return nil, errors.Wrapf(ErrIndexFormat, "%s: node %d filter does not match the factory", path, idx)
		}
		n := &node{kind: internalNode, name: info.Name, parent: info.Parent, children: [2]int{info.Children[0], info.Children[1]}, filter: filter}
		if err := placeNode(idx, n); err != nil {
			return nil, err
		}
	}
	for idx, info := range m.Leaves {
		if info.Md5sum == "" {
			return nil, errors.Wrapf(ErrIndexFormat, "%s: leaf %d has no md5sum", path, idx)
		}
		n := &node{kind: leafNode, name: info.Name, parent: info.Parent, children: [2]int{-1, -1}, md5: info.Md5sum}
		if err := placeNode(idx, n); err != nil {
			return nil, err
		}
	}
	if err := t.checkLinks(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return t, nil
}

// checkLinks makes sure the parent and child links of a loaded tree agree
func (t *SBT) checkLinks() error {
	if len(t.nodes) == 0 {
		return nil
	}
	if t.nodes[0].kind != internalNode || t.nodes[0].parent != -1 {
		return errors.Wrap(ErrIndexFormat, "node 0 is not the root")
	}
	for idx, n := range t.nodes {
		if idx != 0 && (n.parent < 0 || n.parent >= len(t.nodes) || t.nodes[n.parent].kind != internalNode) {
			return errors.Wrapf(ErrIndexFormat, "node %d has a dangling parent link (%d)", idx, n.parent)
		}
		if idx != 0 && t.nodes[n.parent].children[0] != idx && t.nodes[n.parent].children[1] != idx {
			return errors.Wrapf(ErrIndexFormat, "node %d is not a child of its parent (%d)", idx, n.parent)
		}
		if n.kind != internalNode {
			continue
		}
		for _, child := range n.children {
			if child == -1 {
				continue
			}
			if child <= 0 || child >= len(t.nodes) || t.nodes[child].parent != idx {
				return errors.Wrapf(ErrIndexFormat, "node %d has a dangling child link (%d)", idx, child)
			}
		}
	}
	return nil
}
