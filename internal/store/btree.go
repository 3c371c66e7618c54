package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/golang/snappy"
)

// Branching factor and inline-value threshold. These are deliberately
// modest (not byte-packed to exactly fill a 4 KiB page) — see DESIGN.md
// for why the node layout trades page-fill efficiency for a simple,
// reviewable encoding.
const (
	maxLeafEntries       = 32
	maxInternalChildren  = 32
	inlineValueThreshold = 512
)

// Key identifies one persisted (entity, component) slot.
type Key struct {
	Entity    uint32
	Component uint32
}

func (k Key) less(o Key) bool {
	if k.Entity != o.Entity {
		return k.Entity < o.Entity
	}
	return k.Component < o.Component
}

func (k Key) equal(o Key) bool { return k == o }

// Entry is one record in a commit batch: component bytes for an entity,
// or a tombstone marking that component as removed as of this tick.
type Entry struct {
	Key       Key
	Value     []byte
	Tombstone bool
}

// SortEntries sorts a batch into the key order commit() requires
// (spec.md §4.7 "for each key... in the sorted batch").
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key.less(entries[j].Key) })
}

// leafValue is a leaf's per-key payload: inline bytes for small values,
// or an Overflow-page reference for large ones (spec.md §4.7 "leaves
// hold inline entries or overflow references").
type leafValue struct {
	tombstone   bool
	inline      []byte
	overflowOff int64
	overflowLen int32
	rawLen      int32
}

// node is an in-memory B+tree node. Unchanged nodes are shared by
// pointer across tree versions — the essence of copy-on-write: an
// insert only allocates new node objects along the root-to-leaf path
// it touches (spec.md §4.7 "Pages outside the touched paths are reused
// by reference").
type node struct {
	leaf     bool
	dirty    bool
	offset   int64 // 0 until persisted
	keys     []Key
	values   []leafValue // leaf only, parallel to keys
	children []*node     // internal only, len(children) == len(keys)+1

	// pendingChildOffsets holds this node's children's page offsets when
	// the node was just loaded from disk and its children haven't been
	// hydrated into `children` yet (lazy loading).
	pendingChildOffsets []int64
}

func newLeaf(keys []Key, values []leafValue) *node {
	return &node{leaf: true, dirty: true, keys: keys, values: values}
}

func newInternal(keys []Key, children []*node) *node {
	return &node{leaf: false, dirty: true, keys: keys, children: children}
}

// BTree is the copy-on-write B+tree over one PageFile. It keeps the
// current root in memory and lazily loads historical nodes on demand.
type BTree struct {
	pf    *PageFile
	cache map[int64]*node
}

func NewBTree(pf *PageFile) *BTree {
	return &BTree{pf: pf, cache: make(map[int64]*node)}
}

// LoadRoot returns the node at a previously-persisted root offset,
// using the in-process cache when available.
func (t *BTree) LoadRoot(offset int64) (*node, error) {
	if offset == 0 {
		return nil, nil
	}
	return t.loadNode(offset)
}

func (t *BTree) loadNode(offset int64) (*node, error) {
	if n, ok := t.cache[offset]; ok {
		return n, nil
	}
	pt, _, payload, err := t.pf.ReadPage(offset)
	if err != nil {
		return nil, err
	}
	n, err := decodeNode(pt, payload)
	if err != nil {
		return nil, err
	}
	n.offset = offset
	n.dirty = false
	t.cache[offset] = n
	return n, nil
}

func (t *BTree) valueFor(v []byte, tombstone bool) (leafValue, error) {
	if tombstone {
		return leafValue{tombstone: true}, nil
	}
	if len(v) <= inlineValueThreshold {
		return leafValue{inline: append([]byte(nil), v...), rawLen: int32(len(v))}, nil
	}
	compressed := snappy.Encode(nil, v)
	off, err := t.pf.Append(PageOverflow, 0, 1, compressed)
	if err != nil {
		return leafValue{}, err
	}
	return leafValue{overflowOff: off, overflowLen: int32(len(compressed)), rawLen: int32(len(v))}, nil
}

func (t *BTree) readValue(lv leafValue) ([]byte, bool, error) {
	if lv.tombstone {
		return nil, false, nil
	}
	if lv.inline != nil || lv.overflowOff == 0 {
		return lv.inline, true, nil
	}
	_, _, payload, err := t.pf.ReadPage(lv.overflowOff)
	if err != nil {
		return nil, false, err
	}
	raw, err := snappy.Decode(make([]byte, 0, lv.rawLen), payload)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Insert performs a single-key copy-on-write insert/update/tombstone,
// returning the new root. root may be nil (empty tree).
func (t *BTree) Insert(root *node, key Key, value []byte, tombstone bool) (*node, error) {
	lv, err := t.valueFor(value, tombstone)
	if err != nil {
		return nil, err
	}
	newRoot, promoted, sibling, err := t.insertRec(root, key, lv)
	if err != nil {
		return nil, err
	}
	if sibling != nil {
		newRoot = newInternal([]Key{*promoted}, []*node{newRoot, sibling})
	}
	return newRoot, nil
}

// insertRec returns the (possibly new) node for this subtree, plus a
// promoted separator key and right sibling if this subtree split.
func (t *BTree) insertRec(n *node, key Key, lv leafValue) (*node, *Key, *node, error) {
	if n == nil {
		return newLeaf([]Key{key}, []leafValue{lv}), nil, nil, nil
	}
	if n.leaf {
		idx := sort.Search(len(n.keys), func(i int) bool { return !n.keys[i].less(key) })
		keys := append([]Key(nil), n.keys...)
		values := append([]leafValue(nil), n.values...)
		if idx < len(keys) && keys[idx].equal(key) {
			values[idx] = lv
		} else {
			keys = append(keys, Key{})
			copy(keys[idx+1:], keys[idx:])
			keys[idx] = key
			values = append(values, leafValue{})
			copy(values[idx+1:], values[idx:])
			values[idx] = lv
		}
		leaf := newLeaf(keys, values)
		if len(keys) <= maxLeafEntries {
			return leaf, nil, nil, nil
		}
		mid := len(keys) / 2
		left := newLeaf(keys[:mid], values[:mid])
		right := newLeaf(append([]Key(nil), keys[mid:]...), append([]leafValue(nil), values[mid:]...))
		sepKey := right.keys[0]
		return left, &sepKey, right, nil
	}

	idx := sort.Search(len(n.keys), func(i int) bool { return key.less(n.keys[i]) })
	child, err := t.resolveChild(n, idx)
	if err != nil {
		return nil, nil, nil, err
	}
	newChild, promoted, sibling, err := t.insertRec(child, key, lv)
	if err != nil {
		return nil, nil, nil, err
	}

	// A node decoded from disk has nil children until they are resolved;
	// hydrate them all so the copy below does not lose their page offsets.
	for i := range n.children {
		if _, err := t.resolveChild(n, i); err != nil {
			return nil, nil, nil, err
		}
	}
	children := append([]*node(nil), n.children...)
	children[idx] = newChild
	keys := append([]Key(nil), n.keys...)
	if promoted != nil {
		keys = append(keys, Key{})
		copy(keys[idx+1:], keys[idx:])
		keys[idx] = *promoted
		children = append(children, nil)
		copy(children[idx+2:], children[idx+1:])
		children[idx+1] = sibling
	}
	internal := newInternal(keys, children)
	if len(children) <= maxInternalChildren {
		return internal, nil, nil, nil
	}
	mid := len(keys) / 2
	leftKeys, sepKey, rightKeys := keys[:mid], keys[mid], keys[mid+1:]
	leftChildren, rightChildren := children[:mid+1], children[mid+1:]
	left := newInternal(leftKeys, leftChildren)
	right := newInternal(append([]Key(nil), rightKeys...), append([]*node(nil), rightChildren...))
	sep := sepKey
	return left, &sep, right, nil
}

func (t *BTree) resolveChild(n *node, idx int) (*node, error) {
	if n.children[idx] != nil {
		return n.children[idx], nil
	}
	if n.pendingChildOffsets != nil && n.pendingChildOffsets[idx] != 0 {
		c, err := t.loadNode(n.pendingChildOffsets[idx])
		if err != nil {
			return nil, err
		}
		n.children[idx] = c
		return c, nil
	}
	return nil, nil
}

// Get walks from root to the leaf holding key.
func (t *BTree) Get(root *node, key Key) ([]byte, bool, error) {
	n := root
	for n != nil && !n.leaf {
		idx := sort.Search(len(n.keys), func(i int) bool { return key.less(n.keys[i]) })
		var err error
		n, err = t.childAt(n, idx)
		if err != nil {
			return nil, false, err
		}
	}
	if n == nil {
		return nil, false, nil
	}
	i := sort.Search(len(n.keys), func(i int) bool { return !n.keys[i].less(key) })
	if i >= len(n.keys) || !n.keys[i].equal(key) {
		return nil, false, nil
	}
	return t.readValue(n.values[i])
}

func (t *BTree) childAt(n *node, idx int) (*node, error) {
	return t.resolveChild(n, idx)
}

// Snapshot range-scans every live (non-tombstoned) entry reachable from
// root, in ascending key order (spec.md §4.7 "range-scans leaves from
// the historical root").
func (t *BTree) Snapshot(root *node) ([]Entry, error) {
	var out []Entry
	var walk func(n *node) error
	walk = func(n *node) error {
		if n == nil {
			return nil
		}
		if n.leaf {
			for i, k := range n.keys {
				v, ok, err := t.readValue(n.values[i])
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				out = append(out, Entry{Key: k, Value: v})
			}
			return nil
		}
		for i := range n.children {
			c, err := t.resolveChild(n, i)
			if err != nil {
				return err
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// Persist writes every dirty node in root's subtree to the page file,
// bottom-up, and returns root's new page offset. Nodes that were not
// touched by the last Insert (dirty == false) are skipped entirely —
// they keep their existing offset and their page is reused by
// reference, which is the on-disk half of copy-on-write.
func (t *BTree) Persist(root *node, tick uint32) (int64, error) {
	if root == nil {
		return 0, nil
	}
	if !root.dirty {
		return root.offset, nil
	}
	if !root.leaf {
		for _, c := range root.children {
			if _, err := t.Persist(c, tick); err != nil {
				return 0, err
			}
		}
	}
	payload, entryCount, err := encodeNode(root)
	if err != nil {
		return 0, err
	}
	pt := PageLeaf
	if !root.leaf {
		pt = PageInternal
	}
	offset, err := t.pf.Append(pt, tick, entryCount, payload)
	if err != nil {
		return 0, err
	}
	root.offset = offset
	root.dirty = false
	t.cache[offset] = root
	return offset, nil
}

// --- node encoding ---
//
// Leaf payload: for each key, entity(4) component(4) flags(1)
// inlineLen(4) overflowOff(8) overflowLen(4) rawLen(4) inline-bytes.
// Internal payload: for each key, entity(4) component(4); then
// len(keys)+1 child offsets (8 bytes each).

func encodeNode(n *node) ([]byte, uint16, error) {
	var buf bytes.Buffer
	if n.leaf {
		for i, k := range n.keys {
			binary.Write(&buf, binary.LittleEndian, k.Entity)
			binary.Write(&buf, binary.LittleEndian, k.Component)
			v := n.values[i]
			flags := byte(0)
			if v.tombstone {
				flags = 1
			}
			buf.WriteByte(flags)
			binary.Write(&buf, binary.LittleEndian, int32(len(v.inline)))
			binary.Write(&buf, binary.LittleEndian, v.overflowOff)
			binary.Write(&buf, binary.LittleEndian, v.overflowLen)
			binary.Write(&buf, binary.LittleEndian, v.rawLen)
			buf.Write(v.inline)
		}
		if buf.Len() > PageSize-pageHeaderSize-4 {
			return nil, 0, fmt.Errorf("rgbworld/store: leaf node payload %d bytes exceeds page capacity", buf.Len())
		}
	} else {
		for _, k := range n.keys {
			binary.Write(&buf, binary.LittleEndian, k.Entity)
			binary.Write(&buf, binary.LittleEndian, k.Component)
		}
		for _, c := range n.children {
			binary.Write(&buf, binary.LittleEndian, c.offset)
		}
	}
	// frame: [keyCount(4)][body]. The page header (file.go) already carries
	// the exact payload length, so the body needs no length prefix of its
	// own — only the key count, to know where the key array ends and the
	// child-offset array begins for internal nodes.
	framed := make([]byte, 4+buf.Len())
	binary.LittleEndian.PutUint32(framed[0:4], uint32(len(n.keys)))
	copy(framed[4:], buf.Bytes())
	return framed, uint16(len(n.keys)), nil
}

func decodeNode(pt PageType, payload []byte) (*node, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("rgbworld/store: truncated node payload")
	}
	keyCount := int(binary.LittleEndian.Uint32(payload[0:4]))
	body := payload[4:]
	r := bytes.NewReader(body)

	switch pt {
	case PageLeaf:
		keys := make([]Key, keyCount)
		values := make([]leafValue, keyCount)
		for i := 0; i < keyCount; i++ {
			var k Key
			binary.Read(r, binary.LittleEndian, &k.Entity)
			binary.Read(r, binary.LittleEndian, &k.Component)
			flags, _ := r.ReadByte()
			var inlineLen int32
			binary.Read(r, binary.LittleEndian, &inlineLen)
			var v leafValue
			v.tombstone = flags&1 != 0
			binary.Read(r, binary.LittleEndian, &v.overflowOff)
			binary.Read(r, binary.LittleEndian, &v.overflowLen)
			binary.Read(r, binary.LittleEndian, &v.rawLen)
			if inlineLen > 0 {
				v.inline = make([]byte, inlineLen)
				r.Read(v.inline)
			}
			keys[i] = k
			values[i] = v
		}
		return &node{leaf: true, keys: keys, values: values}, nil
	case PageInternal:
		keys := make([]Key, keyCount)
		for i := 0; i < keyCount; i++ {
			binary.Read(r, binary.LittleEndian, &keys[i].Entity)
			binary.Read(r, binary.LittleEndian, &keys[i].Component)
		}
		offsets := make([]int64, keyCount+1)
		for i := range offsets {
			binary.Read(r, binary.LittleEndian, &offsets[i])
		}
		children := make([]*node, keyCount+1)
		return &node{leaf: false, keys: keys, children: children, pendingChildOffsets: offsets}, nil
	default:
		return nil, fmt.Errorf("rgbworld/store: unexpected page type %d for node", pt)
	}
}
