// Command pdfinspect prints what the merge pipeline sees in one PDF: its
// version, cross-reference state and page tree, or its raw token stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wudi/pdfcombine/document"
	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/recovery"
	"github.com/wudi/pdfcombine/scanner"
)

func main() {
	tokens := flag.Int("tokens", 0, "Dump up to n tokens instead of the summary")
	strict := flag.Bool("strict", false, "Report malformed syntax instead of recovering")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdfinspect [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfinspect: %v\n", err)
		os.Exit(1)
	}
	if *tokens > 0 {
		err = dumpTokens(os.Stdout, data, *tokens)
	} else {
		err = summarize(os.Stdout, data, *strict)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfinspect: %v\n", err)
		os.Exit(1)
	}
}

func dumpTokens(w io.Writer, data []byte, limit int) error {
	s := scanner.NewBytes(data, scanner.Config{})
	for i := 0; i < limit; i++ {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch tok.Type {
		case scanner.TokenStream:
			fmt.Fprintf(w, "%d %s %d bytes\n", tok.Pos, tok.Type, len(tok.Bytes))
		case scanner.TokenString:
			fmt.Fprintf(w, "%d %s %q\n", tok.Pos, tok.Type, tok.Bytes)
		case scanner.TokenNumber:
			if tok.IsInt {
				fmt.Fprintf(w, "%d %s %d\n", tok.Pos, tok.Type, tok.Int)
			} else {
				fmt.Fprintf(w, "%d %s %g\n", tok.Pos, tok.Type, tok.Float)
			}
		case scanner.TokenRef:
			fmt.Fprintf(w, "%d %s %d %d R\n", tok.Pos, tok.Type, tok.Int, tok.Gen)
		default:
			fmt.Fprintf(w, "%d %s %s\n", tok.Pos, tok.Type, tok.Str)
		}
	}
	return nil
}

func summarize(w io.Writer, data []byte, strict bool) error {
	cfg := document.Config{}
	lenient := recovery.NewLenientStrategy()
	cfg.Recovery = lenient
	if strict {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	d, err := document.Open(context.Background(), data, cfg)
	if err != nil {
		return err
	}
	pages, err := d.Pages()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "version:  %s\n", d.Version())
	fmt.Fprintf(w, "objects:  %d\n", d.ObjectCount())
	fmt.Fprintf(w, "repaired: %v\n", d.Repaired())
	if d.Linearized() {
		fmt.Fprintln(w, "linearized")
	}
	if title := d.Title(); title != "" {
		fmt.Fprintf(w, "title:    %s\n", title)
	}
	fmt.Fprintf(w, "pages:    %d\n", len(pages))
	for i, p := range pages {
		box := "-"
		if mb, ok := p.Inherited("MediaBox"); ok {
			if v, err := d.Deref(mb); err == nil {
				box = boxString(v)
			}
		}
		fmt.Fprintf(w, "  %4d  %-8s depth %d  mediabox %s\n", i+1, p.Ref, p.Depth(), box)
	}
	for _, e := range lenient.Errors() {
		fmt.Fprintf(w, "recovered: %v\n", e)
	}
	return nil
}

func boxString(o raw.Object) string {
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return "?"
	}
	parts := make([]string, 0, len(arr.Items))
	for _, it := range arr.Items {
		n, ok := it.(raw.NumberObj)
		if !ok {
			return "?"
		}
		parts = append(parts, fmt.Sprintf("%g", n.Float()))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
