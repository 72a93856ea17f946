package merge

import (
	"context"
	"fmt"

	"github.com/wudi/pdfcombine/closure"
	"github.com/wudi/pdfcombine/document"
	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/security"
	"github.com/wudi/pdfcombine/textenc"
)

// defaultMediaBox is US Letter, used when no ancestor defines a MediaBox.
var defaultMediaBox = []int64{0, 0, 612, 792}

// directKeys are resolved to direct values when flattened onto a page.
var directKeys = map[string]bool{"MediaBox": true, "CropBox": true, "Rotate": true}

// Merger appends the pages of source documents to a State.
type Merger struct {
	state  *State
	renum  *Renumberer
	logger observability.Logger
	limits security.Limits
}

func NewMerger(s *State, limits security.Limits, logger observability.Logger) *Merger {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Merger{state: s, renum: NewRenumberer(s), logger: logger, limits: limits.WithDefaults()}
}

// AddDocument copies every page of doc, in document order.
func (m *Merger) AddDocument(ctx context.Context, doc *document.Document) (int, error) {
	pages, err := doc.Pages()
	if err != nil {
		return 0, err
	}
	// Page numbers are reserved up front so links between pages of the
	// same document survive, whichever page comes first.
	refs := make([]raw.ObjectRef, len(pages))
	for i, p := range pages {
		if _, ok := m.state.Lookup(doc.ID(), p.Ref.Num); ok {
			refs[i] = m.state.Allocate()
			continue
		}
		refs[i] = raw.ObjectRef{Num: m.state.reserve(doc.ID(), p.Ref.Num)}
	}
	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := m.addPage(ctx, doc, p, refs[i]); err != nil {
			return 0, fmt.Errorf("page %d: %w", i+1, err)
		}
	}
	return len(pages), nil
}

func (m *Merger) addPage(ctx context.Context, doc *document.Document, p document.Page, dst raw.ObjectRef) error {
	flat, err := m.flatten(doc, p)
	if err != nil {
		return err
	}
	set, err := closure.Walk(ctx, doc, flat, closure.WithMaxObjects(m.limits.MaxClosureObjects))
	if err != nil {
		return err
	}
	if mapped, _ := m.state.Lookup(doc.ID(), p.Ref.Num); mapped == dst.Num {
		_, err = m.renum.Copy(doc.ID(), p.Ref.Num, flat, set)
	} else {
		err = m.renum.CopyAs(dst, doc.ID(), flat, set)
	}
	if err != nil {
		return err
	}
	m.state.AppendPage(dst)
	m.logger.Debug("copied page",
		observability.Int("input", doc.ID()),
		observability.String("source", p.Ref.String()),
		observability.Int("object", dst.Num),
		observability.Int("closure", set.Len()),
	)
	return nil
}

// flatten returns a copy of the page dictionary without Parent and with
// inheritable attributes made explicit.
func (m *Merger) flatten(doc *document.Document, p document.Page) (*raw.DictObj, error) {
	out := raw.Dict()
	for k, v := range p.Dict.KV {
		if k == "Parent" {
			continue
		}
		out.KV[k] = v
	}
	for _, key := range document.InheritableKeys {
		v, ok := p.Inherited(key)
		if !ok {
			continue
		}
		if directKeys[key] {
			resolved, err := doc.Deref(v)
			if err != nil {
				return nil, err
			}
			v = resolved
		}
		out.KV[key] = v
	}
	if _, ok := out.KV["MediaBox"]; !ok {
		box := raw.NewArray()
		for _, n := range defaultMediaBox {
			box.Append(raw.NumberInt(n))
		}
		out.KV["MediaBox"] = box
	}
	if _, ok := out.KV["Resources"]; !ok {
		out.KV["Resources"] = raw.Dict()
	}
	out.KV["Type"] = raw.NameLiteral("Page")
	return out, nil
}

// Finish builds the page tree root, the catalog and the Info dictionary,
// then points every page at the new root. It returns the catalog and Info
// references.
func (m *Merger) Finish(title, producer string) (raw.ObjectRef, raw.ObjectRef, error) {
	if missing := m.state.Unfilled(); len(missing) > 0 {
		return raw.ObjectRef{}, raw.ObjectRef{}, &pdferr.StructuralError{
			Ref: raw.ObjectRef{Num: missing[0]},
			Msg: fmt.Sprintf("%d destination objects were never copied", len(missing)),
		}
	}
	pages := m.state.Pages()
	root := m.state.Allocate()
	kids := raw.NewArray()
	for _, ref := range pages {
		kids.Append(raw.RefObj{R: ref})
		if d, ok := m.state.objects[ref.Num].(*raw.DictObj); ok {
			d.Set(raw.NameLiteral("Parent"), raw.RefObj{R: root})
		}
	}
	pagesDict := raw.Dict()
	pagesDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pagesDict.Set(raw.NameLiteral("Kids"), kids)
	pagesDict.Set(raw.NameLiteral("Count"), raw.NumberInt(int64(len(pages))))
	m.state.Set(root.Num, pagesDict)

	catalog := m.state.Allocate()
	cat := raw.Dict()
	cat.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	cat.Set(raw.NameLiteral("Pages"), raw.RefObj{R: root})
	m.state.Set(catalog.Num, cat)

	info := m.state.Allocate()
	infoDict := raw.Dict()
	infoDict.Set(raw.NameLiteral("Producer"), raw.Str(textenc.Encode(producer)))
	if title != "" {
		infoDict.Set(raw.NameLiteral("Title"), raw.Str(textenc.Encode(title)))
	}
	m.state.Set(info.Num, infoDict)
	return catalog, info, nil
}
