package parser

import (
	"testing"

	"github.com/wudi/pdfcombine/ir/raw"
)

func objStmDict(n, first int) *raw.DictObj {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Type"), raw.NameLiteral("ObjStm"))
	d.Set(raw.NameLiteral("N"), raw.NumberInt(int64(n)))
	d.Set(raw.NameLiteral("First"), raw.NumberInt(int64(first)))
	return d
}

func TestObjectStreamObjects(t *testing.T) {
	header := "4 0 5 13 "
	body := "<< /Val 7 >> [1 2 R]"
	os, err := NewObjectStream(objStmDict(2, len(header)), []byte(header+body))
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if len(os.Entries) != 2 || os.Entries[1] != (ObjStmEntry{Num: 5, Offset: 13}) {
		t.Fatalf("entries = %+v", os.Entries)
	}
	ref, obj, err := os.Object(0, Config{})
	if err != nil || ref.Num != 4 {
		t.Fatalf("object 0: ref=%v err=%v", ref, err)
	}
	if v, _ := raw.IntOf(obj.(*raw.DictObj), "Val"); v != 7 {
		t.Fatalf("Val = %d", v)
	}
	ref, obj, err = os.Object(1, Config{})
	if err != nil || ref.Num != 5 {
		t.Fatalf("object 1: ref=%v err=%v", ref, err)
	}
	arr, ok := obj.(*raw.ArrayObj)
	if !ok || arr.Len() != 1 {
		t.Fatalf("object 1 = %#v", obj)
	}
	if r, ok := arr.Items[0].(raw.RefObj); !ok || r.R.Num != 1 || r.R.Gen != 2 {
		t.Fatalf("expected reference 1 2 R, got %#v", arr.Items[0])
	}
	if _, _, err := os.Object(2, Config{}); err == nil {
		t.Fatalf("index out of range should fail")
	}
}

func TestObjectStreamBadHeader(t *testing.T) {
	cases := map[string]struct {
		dict *raw.DictObj
		data string
	}{
		"missing N":      {dict: raw.Dict(), data: "1 0 (x)"},
		"First too big":  {dict: objStmDict(1, 99), data: "1 0 (x)"},
		"short header":   {dict: objStmDict(2, 4), data: "1 0 (x)"},
		"non numeric":    {dict: objStmDict(1, 6), data: "/A /B (x)"},
		"N exceeds data": {dict: objStmDict(1000, 4), data: "1 0 (x)"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewObjectStream(tc.dict, []byte(tc.data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
