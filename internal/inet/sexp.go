// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package inet

import (
	"fmt"
	"strings"
)

// sexp is either a bare symbol or a parenthesized list, the minimal
// shape the rewire DSL's grammar needs (§4.6).
type sexp struct {
	Sym  string
	List []sexp
}

func (s sexp) isSym(name string) bool { return s.List == nil && s.Sym == name }

// head returns the symbol at List[0], for dispatching on form name.
func (s sexp) head() (string, bool) {
	if len(s.List) == 0 {
		return "", false
	}
	return s.List[0].Sym, s.List[0].List == nil
}

func tokenizeSexp(src string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range src {
		switch {
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

// parseSexp parses exactly one S-expression from src.
func parseSexp(src string) (sexp, error) {
	toks := tokenizeSexp(src)
	if len(toks) == 0 {
		return sexp{}, fmt.Errorf("inet: empty rewire body")
	}
	node, rest, err := parseSexpTokens(toks)
	if err != nil {
		return sexp{}, err
	}
	if len(rest) != 0 {
		return sexp{}, fmt.Errorf("inet: trailing tokens after rewire body: %v", rest)
	}
	return node, nil
}

func parseSexpTokens(toks []string) (sexp, []string, error) {
	if len(toks) == 0 {
		return sexp{}, nil, fmt.Errorf("inet: unexpected end of rewire body")
	}
	switch toks[0] {
	case "(":
		rest := toks[1:]
		var items []sexp
		for {
			if len(rest) == 0 {
				return sexp{}, nil, fmt.Errorf("inet: unterminated list in rewire body")
			}
			if rest[0] == ")" {
				return sexp{List: items}, rest[1:], nil
			}
			item, next, err := parseSexpTokens(rest)
			if err != nil {
				return sexp{}, nil, err
			}
			items = append(items, item)
			rest = next
		}
	case ")":
		return sexp{}, nil, fmt.Errorf("inet: unexpected ')' in rewire body")
	default:
		return sexp{Sym: toks[0]}, toks[1:], nil
	}
}
