// Package textseg splits query and keyword text into comparable tokens.
// Chinese runs are segmented with a dictionary (gse); other scripts split on
// word boundaries the same way.
package textseg

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-ego/gse"
)

// Segmenter produces lowercase token sets.
type Segmenter struct {
	seg gse.Segmenter
}

// New loads the dictionary compiled into the binary. dictFiles, when given,
// are read from disk instead.
func New(dictFiles ...string) (*Segmenter, error) {
	var (
		seg gse.Segmenter
		err error
	)
	if len(dictFiles) == 0 {
		seg, err = gse.NewEmbed()
	} else {
		seg, err = gse.New(dictFiles...)
	}
	if err != nil {
		return nil, fmt.Errorf("load segmentation dictionary: %w", err)
	}
	return &Segmenter{seg: seg}, nil
}

// Tokens returns the distinct tokens of text in first-seen order.
// Whitespace and punctuation-only tokens are dropped.
func (s *Segmenter) Tokens(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	// Accurate mode: tokens never overlap.
	for _, tok := range s.seg.Cut(text, true) {
		tok = strings.TrimSpace(tok)
		if !meaningful(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func meaningful(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
