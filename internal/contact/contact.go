package contact

import (
	"context"
	"regexp"
	"strings"
)

// Contact holds the contact details found for a seller.
type Contact struct {
	Email string `json:"email"`
	URL   string `json:"url"`
}

func (c Contact) Complete() bool {
	return c.Email != "" && c.URL != ""
}

// Merge fills empty fields of c from other.
func (c Contact) Merge(other Contact) Contact {
	if c.Email == "" {
		c.Email = other.Email
	}
	if c.URL == "" {
		c.URL = other.URL
	}
	return c
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	urlPattern   = regexp.MustCompile(`https?://[a-zA-Z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+`)
)

// EmailFrom returns the first email address in text.
func EmailFrom(text string) string {
	return strings.TrimRight(emailPattern.FindString(text), ".-")
}

// URLFrom returns the first http(s) URL in text.
func URLFrom(text string) string {
	return strings.TrimRight(urlPattern.FindString(text), ".,)")
}

// FromText extracts contact details by pattern.
func FromText(text string) Contact {
	return Contact{Email: EmailFrom(text), URL: URLFrom(text)}
}

// Inferrer extracts contact details from free text when patterns are not
// enough, typically by asking a language model.
type Inferrer interface {
	Infer(ctx context.Context, text string) (Contact, error)
}

// InferFunc adapts a function to Inferrer.
type InferFunc func(ctx context.Context, text string) (Contact, error)

func (f InferFunc) Infer(ctx context.Context, text string) (Contact, error) {
	return f(ctx, text)
}
