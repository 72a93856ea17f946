package filters

import "github.com/wudi/pdfcombine/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
// The returned params slice is aligned with names; missing entries are nil.
func ExtractFilters(dict raw.Dictionary) ([]string, []raw.Dictionary) {
	var names []string
	var params []raw.Dictionary
	if dict == nil {
		return names, params
	}

	filterObj, ok := dict.Get(raw.NameObj{Val: "Filter"})
	if !ok {
		return names, params
	}

	switch f := filterObj.(type) {
	case raw.Name:
		names = append(names, f.Value())
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.Name); ok {
				names = append(names, n.Value())
			}
		}
	}

	if len(names) > 0 {
		params = make([]raw.Dictionary, len(names))
		if pObj, ok := dict.Get(raw.NameObj{Val: "DecodeParms"}); ok {
			switch p := pObj.(type) {
			case *raw.DictObj:
				params[0] = p
			case *raw.ArrayObj:
				for i, item := range p.Items {
					if i >= len(params) {
						break
					}
					if d, ok := item.(*raw.DictObj); ok {
						params[i] = d
					}
				}
			}
		}
	}

	return names, params
}

func paramInt(params raw.Dictionary, key string, def int) int {
	if params == nil {
		return def
	}
	d, ok := params.(*raw.DictObj)
	if !ok || d == nil {
		return def
	}
	if v, ok := raw.IntOf(d, key); ok {
		return int(v)
	}
	return def
}
