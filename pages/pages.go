package pages

import (
	"fmt"

	"github.com/tsawler/vellum/core"
)

// MaxTreeDepth bounds page tree recursion. Real documents rarely nest more
// than a handful of levels; anything past this is treated as corrupt.
const MaxTreeDepth = 64

// DefaultMediaBox is the fallback page size (US Letter, 612x792 points) used
// when no MediaBox is present anywhere in a page's inheritance chain.
var DefaultMediaBox = [4]float64{0, 0, 612, 792}

// ObjectResolver resolves indirect references against the owning document.
type ObjectResolver interface {
	// Resolve returns obj itself unless it is an indirect reference, in
	// which case the referenced object is returned.
	Resolve(obj core.Object) (core.Object, error)
	// ResolveReference resolves an indirect reference.
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// Catalog is the document catalog, the root of the logical structure.
type Catalog struct {
	dict     core.Dict
	resolver ObjectResolver
}

// NewCatalog wraps a catalog dictionary.
func NewCatalog(dict core.Dict, resolver ObjectResolver) *Catalog {
	return &Catalog{dict: dict, resolver: resolver}
}

// Dict returns the underlying catalog dictionary.
func (c *Catalog) Dict() core.Dict { return c.dict }

// Pages returns the root node of the page tree.
func (c *Catalog) Pages() (core.Dict, error) {
	pagesObj := c.dict.Get("Pages")
	if pagesObj == nil {
		return nil, &core.CorruptError{Msg: "catalog has no /Pages"}
	}
	resolved, err := c.resolver.Resolve(pagesObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Pages: %w", err)
	}
	dict, ok := resolved.(core.Dict)
	if !ok {
		return nil, &core.CorruptError{Msg: fmt.Sprintf("/Pages is %T, not a dictionary", resolved)}
	}
	return dict, nil
}

// Metadata returns the catalog's XMP metadata stream, or nil when absent.
func (c *Catalog) Metadata() (*core.Stream, error) {
	metaObj := c.dict.Get("Metadata")
	if metaObj == nil {
		return nil, nil
	}
	resolved, err := c.resolver.Resolve(metaObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Metadata: %w", err)
	}
	stream, ok := resolved.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("/Metadata is %T, not a stream", resolved)
	}
	return stream, nil
}

// PageTree is the flattened page list built from the /Pages hierarchy.
type PageTree struct {
	root     core.Dict
	resolver ObjectResolver
	pages    []*Page // filled lazily by loadPages
}

// NewPageTree creates a page tree rooted at the given /Pages dictionary.
func NewPageTree(root core.Dict, resolver ObjectResolver) *PageTree {
	return &PageTree{root: root, resolver: resolver}
}

// Count returns the number of pages. The root /Count entry is used when
// present; otherwise the tree is traversed.
func (t *PageTree) Count() (int, error) {
	if count, ok := t.root.GetInt("Count"); ok && count >= 0 {
		return int(count), nil
	}
	if err := t.loadPages(); err != nil {
		return 0, err
	}
	return len(t.pages), nil
}

// Page returns the page at index (0-based).
func (t *PageTree) Page(index int) (*Page, error) {
	if err := t.loadPages(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(t.pages) {
		return nil, fmt.Errorf("page index %d out of range [0, %d)", index, len(t.pages))
	}
	return t.pages[index], nil
}

// Pages returns all pages in document order.
func (t *PageTree) Pages() ([]*Page, error) {
	if err := t.loadPages(); err != nil {
		return nil, err
	}
	return t.pages, nil
}

func (t *PageTree) loadPages() error {
	if t.pages != nil {
		return nil
	}
	pages := make([]*Page, 0)
	visited := make(map[core.IndirectRef]bool)
	if err := t.walk(t.root, nil, visited, 0, &pages); err != nil {
		t.pages = nil
		return err
	}
	t.pages = pages
	return nil
}

// walk traverses one node. ancestors holds the container dictionaries from
// root to the node's parent, innermost last, and is what inheritance
// resolution later consults.
func (t *PageTree) walk(node core.Dict, ancestors []core.Dict, visited map[core.IndirectRef]bool, depth int, out *[]*Page) error {
	if depth > MaxTreeDepth {
		return &core.CorruptError{Msg: fmt.Sprintf("page tree deeper than %d levels", MaxTreeDepth)}
	}

	if t.isContainer(node) {
		kidsObj, err := t.resolver.Resolve(node.Get("Kids"))
		if err != nil {
			return fmt.Errorf("failed to resolve /Kids: %w", err)
		}
		kids, ok := kidsObj.(core.Array)
		if !ok {
			return &core.CorruptError{Msg: fmt.Sprintf("/Kids is %T, not an array", kidsObj)}
		}

		chain := append(append([]core.Dict{}, ancestors...), node)
		for i, kidObj := range kids {
			if ref, ok := kidObj.(core.IndirectRef); ok {
				if visited[ref] {
					return &core.CorruptError{Msg: fmt.Sprintf("page tree cycle at object %d", ref.Number)}
				}
				visited[ref] = true
			}
			resolved, err := t.resolver.Resolve(kidObj)
			if err != nil {
				return fmt.Errorf("failed to resolve kid %d: %w", i, err)
			}
			kid, ok := resolved.(core.Dict)
			if !ok {
				return &core.CorruptError{Msg: fmt.Sprintf("kid %d is %T, not a dictionary", i, resolved)}
			}
			if err := t.walk(kid, chain, visited, depth+1, out); err != nil {
				return err
			}
		}
		return nil
	}

	// Leaf page. Nodes without a /Type but also without /Kids are treated
	// as pages; some producers omit the type entry.
	*out = append(*out, NewPage(node, ancestors, t.resolver))
	return nil
}

// isContainer reports whether node is an intermediate /Pages node.
func (t *PageTree) isContainer(node core.Dict) bool {
	if typeName, ok := node.GetName("Type"); ok {
		return typeName == "Pages"
	}
	return node.Has("Kids")
}

// Page is a read-only view of a single page. It borrows its dictionaries
// from the document's object cache and owns nothing itself.
type Page struct {
	dict      core.Dict
	ancestors []core.Dict // container chain, outermost first
	resolver  ObjectResolver
}

// NewPage creates a page view. ancestors is the container chain from the
// tree root down to the page's direct parent.
func NewPage(dict core.Dict, ancestors []core.Dict, resolver ObjectResolver) *Page {
	return &Page{dict: dict, ancestors: ancestors, resolver: resolver}
}

// Dict returns the page dictionary.
func (p *Page) Dict() core.Dict { return p.dict }

// inherited returns the first value for key found on the page or, failing
// that, on the closest ancestor. The chain is finite by construction (the
// tree walk already rejected cycles), so this always terminates.
func (p *Page) inherited(key string) core.Object {
	if obj := p.dict.Get(key); obj != nil {
		return obj
	}
	for i := len(p.ancestors) - 1; i >= 0; i-- {
		if obj := p.ancestors[i].Get(key); obj != nil {
			return obj
		}
	}
	return nil
}

// MediaBox returns the page's media box [x1 y1 x2 y2], inherited if absent
// locally, defaulting to DefaultMediaBox when missing everywhere.
func (p *Page) MediaBox() ([4]float64, error) {
	box, err := p.box("MediaBox")
	if err != nil {
		return [4]float64{}, err
	}
	if box == nil {
		return DefaultMediaBox, nil
	}
	return *box, nil
}

// CropBox returns the crop box, defaulting to the media box when absent.
func (p *Page) CropBox() ([4]float64, error) {
	box, err := p.box("CropBox")
	if err != nil {
		return [4]float64{}, err
	}
	if box == nil {
		return p.MediaBox()
	}
	return *box, nil
}

// box resolves a rectangle attribute; nil result means not present.
func (p *Page) box(key string) (*[4]float64, error) {
	obj := p.inherited(key)
	if obj == nil {
		return nil, nil
	}
	resolved, err := p.resolver.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /%s: %w", key, err)
	}
	arr, ok := resolved.(core.Array)
	if !ok || len(arr) != 4 {
		return nil, fmt.Errorf("/%s is not a 4-element array", key)
	}
	var box [4]float64
	for i := 0; i < 4; i++ {
		v, ok := arr.GetNumber(i)
		if !ok {
			return nil, fmt.Errorf("/%s element %d is not a number", key, i)
		}
		box[i] = v
	}
	return &box, nil
}

// Resources returns the page's resource dictionary, inherited if absent.
// A page with no resources anywhere returns an empty dictionary.
func (p *Page) Resources() (core.Dict, error) {
	obj := p.inherited("Resources")
	if obj == nil {
		return core.Dict{}, nil
	}
	resolved, err := p.resolver.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Resources: %w", err)
	}
	dict, ok := resolved.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("/Resources is %T, not a dictionary", resolved)
	}
	return dict, nil
}

// Rotate returns the page rotation normalized to 0, 90, 180 or 270.
func (p *Page) Rotate() int {
	obj := p.inherited("Rotate")
	if obj == nil {
		return 0
	}
	resolved, err := p.resolver.Resolve(obj)
	if err != nil {
		return 0
	}
	rotate, ok := resolved.(core.Int)
	if !ok {
		return 0
	}
	r := int(rotate) % 360
	if r < 0 {
		r += 360
	}
	return r - r%90
}

// Contents returns the page's content streams in order. Pages without
// /Contents return nil; that is an empty page, not an error.
func (p *Page) Contents() ([]*core.Stream, error) {
	contentsObj := p.dict.Get("Contents")
	if contentsObj == nil {
		return nil, nil
	}
	resolved, err := p.resolver.Resolve(contentsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Contents: %w", err)
	}

	switch v := resolved.(type) {
	case *core.Stream:
		return []*core.Stream{v}, nil
	case core.Array:
		streams := make([]*core.Stream, 0, len(v))
		for i, elem := range v {
			r, err := p.resolver.Resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve /Contents[%d]: %w", i, err)
			}
			stream, ok := r.(*core.Stream)
			if !ok {
				// Tolerate stray non-stream entries, as viewers do.
				continue
			}
			streams = append(streams, stream)
		}
		return streams, nil
	default:
		return nil, fmt.Errorf("/Contents is %T, not a stream or array", resolved)
	}
}

// Width returns the media box width.
func (p *Page) Width() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[2] - box[0], nil
}

// Height returns the media box height.
func (p *Page) Height() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[3] - box[1], nil
}
