// Package extract reads field values out of a page with fallback defaults.
// Every function here is total: whatever the driver does (element missing,
// stale handle, timeout, invalid locator, even a panic) the caller gets a
// string back.
package extract

import (
	"strings"

	"github.com/maltedev/amazon-seller-scraper/internal/browser"
)

// Reader reads a value from a located element.
type Reader func(el browser.Element) (string, error)

// ReadText reads the element's visible text.
func ReadText(el browser.Element) (string, error) {
	return el.Text()
}

// ReadAttr reads a named attribute.
func ReadAttr(name string) Reader {
	return func(el browser.Element) (string, error) {
		return el.Attribute(name)
	}
}

// Read locates locator inside scope and applies read. Any failure, or an
// empty value, yields def.
func Read(scope browser.Scope, locator string, read Reader, def string) (value string) {
	defer func() {
		if r := recover(); r != nil {
			value = def
		}
	}()

	if scope == nil {
		return def
	}
	el, err := scope.Find(locator)
	if err != nil || el == nil {
		return def
	}
	v, err := read(el)
	if err != nil || v == "" {
		return def
	}
	return v
}

// Text is Read with ReadText.
func Text(scope browser.Scope, locator, def string) string {
	return Read(scope, locator, ReadText, def)
}

// Attr is Read with ReadAttr.
func Attr(scope browser.Scope, locator, attr, def string) string {
	return Read(scope, locator, ReadAttr(attr), def)
}

// All reads every match of locator in document order, skipping matches that
// read as empty.
func All(scope browser.Scope, locator string, read Reader) (values []string) {
	defer func() {
		if r := recover(); r != nil {
			values = nil
		}
	}()

	if scope == nil {
		return nil
	}
	els, err := scope.FindAll(locator)
	if err != nil {
		return nil
	}
	for _, el := range els {
		v, err := read(el)
		if err != nil {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// Transform post-processes a successfully read value.
type Transform func(string) string

// Strip removes every occurrence of the given substrings.
func Strip(substrs ...string) Transform {
	pairs := make([]string, 0, len(substrs)*2)
	for _, s := range substrs {
		pairs = append(pairs, s, "")
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace
}

// TrimSpace trims surrounding whitespace.
func TrimSpace(s string) string {
	return strings.TrimSpace(s)
}

// Collapse folds runs of whitespace, including newlines, into one space.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FieldSpec describes one field: where it is, how to read it, how to clean
// it, and what to use when it is missing.
type FieldSpec struct {
	Locator    string
	Attr       string
	Transforms []Transform
	Default    string
}

// From extracts the field from scope.
func (f FieldSpec) From(scope browser.Scope) string {
	read := ReadText
	if f.Attr != "" {
		read = ReadAttr(f.Attr)
	}

	const miss = "\x00"
	v := Read(scope, f.Locator, read, miss)
	if v == miss {
		return f.Default
	}
	for _, t := range f.Transforms {
		v = t(v)
	}
	if v == "" {
		return f.Default
	}
	return v
}

// Strategy is one row of an ordered fallback table.
type Strategy struct {
	Name    string
	Locator string
	Read    Reader
}

// First tries strategies in order and returns the first non-empty value and
// the name of the strategy that produced it.
func First(scope browser.Scope, strategies []Strategy, def string) (string, string) {
	for _, s := range strategies {
		read := s.Read
		if read == nil {
			read = ReadText
		}
		const miss = "\x00"
		if v := Read(scope, s.Locator, read, miss); v != miss {
			return v, s.Name
		}
	}
	return def, ""
}

// ChildText reads the text of the first child matching locator, or the
// element's own text when there is no such child.
func ChildText(locator string) Reader {
	return func(el browser.Element) (string, error) {
		if child, err := el.Find(locator); err == nil && child != nil {
			return child.Text()
		}
		return el.Text()
	}
}

// Find narrows scope to the first match of locator, or returns nil. A nil
// scope makes every later read return its default.
func Find(scope browser.Scope, locator string) (found browser.Scope) {
	defer func() {
		if r := recover(); r != nil {
			found = nil
		}
	}()

	if scope == nil {
		return nil
	}
	el, err := scope.Find(locator)
	if err != nil || el == nil {
		return nil
	}
	return el
}
