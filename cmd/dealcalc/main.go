package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/calcerr"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/deal"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

// dealcalc reads one JSON quote request and prints the JSON result.
//
//	dealcalc -kind tax < request.json
//	dealcalc -kind lease -in request.json -rules ./rules
func main() {
	kind := flag.String("kind", "tax", "Quote kind: tax, finance, lease or rules")
	in := flag.String("in", "-", "Request file, or - for stdin")
	rulesDir := flag.String("rules", "", "Directory of rule YAML documents (default: embedded rules)")
	flag.Parse()

	if err := run(*kind, *in, *rulesDir, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "dealcalc: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(kind, in, rulesDir string, stdin io.Reader, stdout io.Writer) error {
	var src taxrules.Source = taxrules.EmbeddedSource{}
	if rulesDir != "" {
		src = taxrules.FileSource{Dir: rulesDir}
	}
	bundle, err := src.Load(context.Background())
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	snap, err := taxrules.NewSnapshot(bundle)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	engine := deal.NewEngine(taxrules.NewStore(snap))

	if kind == "rules" {
		info, err := engine.Rules()
		if err != nil {
			return err
		}
		return encode(stdout, info)
	}

	r := stdin
	if in != "-" {
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var out any
	switch kind {
	case "tax":
		var req deal.TaxRequest
		if err := dec.Decode(&req); err != nil {
			return fmt.Errorf("%w: %v", calcerr.ErrInvalidInput, err)
		}
		out, err = engine.QuoteTax(req)
	case "finance":
		var req deal.FinanceRequest
		if err := dec.Decode(&req); err != nil {
			return fmt.Errorf("%w: %v", calcerr.ErrInvalidInput, err)
		}
		out, err = engine.QuoteFinance(req)
	case "lease":
		var req deal.LeaseRequest
		if err := dec.Decode(&req); err != nil {
			return fmt.Errorf("%w: %v", calcerr.ErrInvalidInput, err)
		}
		out, err = engine.QuoteLease(req)
	default:
		return fmt.Errorf("unknown kind %q (use tax, finance, lease or rules)", kind)
	}
	if err != nil {
		return err
	}
	return encode(stdout, out)
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitCode is 2 for input problems, 3 for unsupported jurisdictions and 1
// otherwise.
func exitCode(err error) int {
	switch {
	case errors.Is(err, calcerr.ErrInvalidInput),
		errors.Is(err, calcerr.ErrInvalidTerm),
		errors.Is(err, calcerr.ErrNegativeAmountFinanced):
		return 2
	case errors.Is(err, calcerr.ErrUnknownJurisdiction),
		errors.Is(err, calcerr.ErrUnsupportedState),
		errors.Is(err, calcerr.ErrReciprocityPolicyMissing):
		return 3
	default:
		return 1
	}
}
