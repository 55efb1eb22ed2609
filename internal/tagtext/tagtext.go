// Package tagtext walks tag-delimited response text without a full XML parser.
//
// Analytics server responses are scraped, not decoded: only the named tags
// are located, in source order, and everything between them is ignored.
package tagtext

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingTag indicates a required tag is absent.
	ErrMissingTag = errors.New("missing tag")
	// ErrUnterminated indicates an opening tag without its closing tag.
	ErrUnterminated = errors.New("unterminated tag")
)

var entities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

// Fragment is a span of text that may contain tags.
type Fragment string

// Element is the content of one tag occurrence. Null is set for empty and self-closing tags.
type Element struct {
	Text string
	Null bool
}

// All returns the content of every <tag>...</tag> occurrence in order.
// Only the bare opening form matches, so <rows> is not a <row>.
func (f Fragment) All(tag string) ([]Fragment, error) {
	open, closing := "<"+tag+">", "</"+tag+">"
	text := string(f)
	var out []Fragment
	for {
		start := strings.Index(text, open)
		if start < 0 {
			return out, nil
		}
		text = text[start+len(open):]
		end := strings.Index(text, closing)
		if end < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnterminated, open)
		}
		out = append(out, Fragment(text[:end]))
		text = text[end+len(closing):]
	}
}

// Lookup returns the unescaped text of the first <tag>...</tag> occurrence.
func (f Fragment) Lookup(tag string) (string, bool, error) {
	open, closing := "<"+tag+">", "</"+tag+">"
	text := string(f)
	start := strings.Index(text, open)
	if start < 0 {
		return "", false, nil
	}
	text = text[start+len(open):]
	end := strings.Index(text, closing)
	if end < 0 {
		return "", false, fmt.Errorf("%w: %s", ErrUnterminated, open)
	}
	return entities.Replace(text[:end]), true, nil
}

// Optional returns the text of tag, or "" when the tag is absent.
func (f Fragment) Optional(tag string) (string, error) {
	text, _, err := f.Lookup(tag)
	return text, err
}

// Required returns the text of tag and fails when the tag is absent.
func (f Fragment) Required(tag string) (string, error) {
	text, ok, err := f.Lookup(tag)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: <%s>", ErrMissingTag, tag)
	}
	return text, nil
}

// Elements returns every occurrence of tag in order, including self-closing
// and attributed forms such as <column null="true"/>.
func (f Fragment) Elements(tag string) ([]Element, error) {
	text := string(f)
	open := "<" + tag
	closing := "</" + tag + ">"
	var out []Element
	for {
		start := indexOpen(text, open)
		if start < 0 {
			return out, nil
		}
		text = text[start+len(open):]
		gt := strings.IndexByte(text, '>')
		if gt < 0 {
			return nil, fmt.Errorf("%w: <%s", ErrUnterminated, tag)
		}
		selfClosing := gt > 0 && text[gt-1] == '/'
		text = text[gt+1:]
		if selfClosing {
			out = append(out, Element{Null: true})
			continue
		}
		end := strings.Index(text, closing)
		if end < 0 {
			return nil, fmt.Errorf("%w: <%s>", ErrUnterminated, tag)
		}
		content := text[:end]
		out = append(out, Element{Text: entities.Replace(content), Null: content == ""})
		text = text[end+len(closing):]
	}
}

// indexOpen finds open followed by '>', '/' or whitespace, so <column> does not match <columns>.
func indexOpen(text, open string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], open)
		if i < 0 {
			return -1
		}
		at := offset + i
		next := at + len(open)
		if next < len(text) {
			switch text[next] {
			case '>', '/', ' ', '\t', '\n', '\r':
				return at
			}
		}
		offset = next
	}
}
