// inspect dumps the bridge's stored relay records and key domains for
// debugging. Read-only; safe to run against a live data dir copy.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"fedbridge/pkg/relay"
	"fedbridge/pkg/store"
)

func main() {
	var p string
	var keysOnly bool
	flag.StringVar(&p, "path", "", "pebble db path")
	flag.BoolVar(&keysOnly, "keys", false, "list key domains instead of relay records")
	flag.Parse()
	if p == "" {
		fmt.Fprintln(os.Stderr, "--path required")
		os.Exit(2)
	}
	if err := store.Open(p); err != nil {
		fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if keysOnly {
		kv, err := store.ListPrefix("magickey:")
		if err != nil {
			fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
			os.Exit(1)
		}
		for k := range kv {
			fmt.Println(strings.TrimPrefix(k, "magickey:"))
		}
		return
	}

	recs, err := relay.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, rec := range recs {
		// payloads can be large; show presence only
		rec.SourceAtom = summarize(rec.SourceAtom)
		rec.SourceAS2 = summarize(rec.SourceAS2)
		rec.SourceMF2 = summarize(rec.SourceMF2)
		_ = enc.Encode(rec)
	}
}

func summarize(v string) string {
	if len(v) > 64 {
		return v[:64] + "..."
	}
	return v
}
