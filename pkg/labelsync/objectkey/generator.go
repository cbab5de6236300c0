package objectkey

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyToken is returned when a key component sanitizes to nothing.
var ErrEmptyToken = errors.New("object key component is empty after sanitizing")

// DefaultExtension is used when an upload carries no file name.
const DefaultExtension = "jpg"

var (
	unsafeRun     = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	underscoreRun = regexp.MustCompile(`_+`)
)

// Sanitize turns a free-text name into a lower-case token made only of
// [a-z0-9_-]. Any run of other characters becomes a single underscore,
// repeated underscores collapse and leading/trailing underscores are
// stripped. Sanitize(Sanitize(x)) == Sanitize(x) for every x.
func Sanitize(name string) string {
	token := unsafeRun.ReplaceAllString(name, "_")
	token = underscoreRun.ReplaceAllString(token, "_")
	return strings.ToLower(strings.Trim(token, "_"))
}

// SanitizeFileName keeps the original file name but removes anything that
// would change the shape of the key (path separators, surrounding spaces).
func SanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
	)
	return strings.TrimSpace(replacer.Replace(name))
}

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates an object key for storage backends
	GenerateKey(metadata KeyMetadata) (string, error)
}

// KeyMetadata contains the catalog names a key is derived from
type KeyMetadata struct {
	CompanyName string
	ProductName string
	StepName    string
	FileName    string
}

// CatalogGenerator lays keys out as
// {company}/{product}/{step}/{prefix}_{filename}
// where prefix is a short random identifier, so repeated uploads of the
// same file under the same names never collide.
type CatalogGenerator struct {
	// PrefixFunc returns the unique prefix. Defaults to the first 8 hex
	// characters of a random UUID.
	PrefixFunc func() string
}

func NewCatalogGenerator() *CatalogGenerator {
	return &CatalogGenerator{PrefixFunc: shortUUID}
}

func (g *CatalogGenerator) GenerateKey(metadata KeyMetadata) (string, error) {
	company := Sanitize(metadata.CompanyName)
	product := Sanitize(metadata.ProductName)
	step := Sanitize(metadata.StepName)

	switch {
	case company == "":
		return "", fmt.Errorf("company name %q: %w", metadata.CompanyName, ErrEmptyToken)
	case product == "":
		return "", fmt.Errorf("product name %q: %w", metadata.ProductName, ErrEmptyToken)
	case step == "":
		return "", fmt.Errorf("step name %q: %w", metadata.StepName, ErrEmptyToken)
	}

	prefixFunc := g.PrefixFunc
	if prefixFunc == nil {
		prefixFunc = shortUUID
	}
	prefix := prefixFunc()

	var filename string
	if safe := SanitizeFileName(metadata.FileName); safe != "" {
		filename = fmt.Sprintf("%s_%s", prefix, safe)
	} else {
		filename = fmt.Sprintf("%s.%s", prefix, DefaultExtension)
	}

	return fmt.Sprintf("%s/%s/%s/%s", company, product, step, filename), nil
}

// ProductPrefix returns the listing prefix holding every image of a product.
func ProductPrefix(companyName, productName string) string {
	return fmt.Sprintf("%s/%s/", Sanitize(companyName), Sanitize(productName))
}

// BaseName returns the last path element of a key. It is the identity
// external annotation tasks are matched by.
func BaseName(key string) string {
	if key == "" {
		return ""
	}
	return path.Base(key)
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
