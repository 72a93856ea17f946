package document

import (
	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/pdferr"
)

// InheritableKeys are the page attributes a leaf may take from its ancestors.
var InheritableKeys = []string{"MediaBox", "CropBox", "Resources", "Rotate"}

// Page is a leaf of the page tree together with its ancestor chain.
type Page struct {
	Ref  raw.ObjectRef
	Dict *raw.DictObj
	// ancestors, nearest first
	ancestors []*raw.DictObj
}

// Inherited returns key from the page itself or from the nearest ancestor
// that defines it. The value is returned unresolved.
func (p Page) Inherited(key string) (raw.Object, bool) {
	if v, ok := p.Dict.KV[key]; ok {
		return v, true
	}
	for _, a := range p.ancestors {
		if v, ok := a.KV[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Depth is the number of Pages nodes above the page.
func (p Page) Depth() int { return len(p.ancestors) }

// Pages flattens the page tree into document order. A Pages node that is
// its own descendant yields a StructuralError.
func (d *Document) Pages() ([]Page, error) {
	cat, catRef, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	root, ok := raw.RefOf(cat, "Pages")
	if !ok {
		return nil, &pdferr.StructuralError{Ref: catRef, Msg: "catalog has no Pages reference"}
	}
	var out []Page
	if err := d.walkPages(root, nil, make(map[int]bool), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PageCount is len(Pages()).
func (d *Document) PageCount() (int, error) {
	pages, err := d.Pages()
	return len(pages), err
}

func (d *Document) walkPages(ref raw.ObjectRef, ancestors []*raw.DictObj, path map[int]bool, out *[]Page) error {
	if path[ref.Num] {
		return &pdferr.StructuralError{Ref: ref, Msg: "page tree node is its own descendant"}
	}
	if len(ancestors) > d.limits.MaxIndirectDepth {
		return &pdferr.StructuralError{Ref: ref, Msg: "page tree too deep"}
	}
	obj, err := d.Resolve(ref)
	if err != nil {
		return err
	}
	node, ok := obj.(*raw.DictObj)
	if !ok {
		return &pdferr.StructuralError{Ref: ref, Msg: "page tree node is not a dictionary"}
	}

	typ, _ := raw.NameOf(node, "Type")
	kidsObj, err := d.Deref(node.KV["Kids"])
	if err != nil {
		return err
	}
	kids, hasKids := kidsObj.(*raw.ArrayObj)
	if typ == "Pages" || (typ != "Page" && hasKids) {
		if !hasKids {
			return nil
		}
		path[ref.Num] = true
		defer delete(path, ref.Num)
		chain := make([]*raw.DictObj, 0, len(ancestors)+1)
		chain = append(chain, node)
		chain = append(chain, ancestors...)
		for i, kid := range kids.Items {
			kref, ok := kid.(raw.RefObj)
			if !ok {
				d.logger.Warn("skipping direct page tree kid",
					observability.String("parent", ref.String()),
					observability.Int("index", i),
				)
				continue
			}
			if err := d.walkPages(kref.R, chain, path, out); err != nil {
				return err
			}
		}
		return nil
	}

	if len(*out) >= d.limits.MaxPages {
		return &pdferr.StructuralError{Ref: ref, Msg: "page count exceeds limit"}
	}
	*out = append(*out, Page{Ref: ref, Dict: node, ancestors: ancestors})
	return nil
}
