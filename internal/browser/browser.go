package browser

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("element not found")
	ErrRootPage    = errors.New("root page cannot be closed")
	ErrUnsupported = errors.New("operation not supported by driver")
	ErrBlocked     = errors.New("blocked by bot protection")
)

// Scope is anything locators can be resolved against: a whole page or a
// single element.
type Scope interface {
	Find(locator string) (Element, error)
	FindAll(locator string) ([]Element, error)
}

type Element interface {
	Scope
	Text() (string, error)
	// Attribute returns "" without error when the attribute is absent.
	Attribute(name string) (string, error)
	Click() error
}

type Page interface {
	Scope
	Navigate(ctx context.Context, url string) error
	URL() string
	// Evaluate runs a script in the page and returns its JSON-compatible
	// result. Drivers without a script engine return ErrUnsupported.
	Evaluate(expression string, args ...any) (any, error)
	Close() error
}

// Driver opens pages inside one browser session.
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}
