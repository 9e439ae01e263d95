// Package extract reads the text content of a discovered file. Plain text,
// source code and markdown are returned as-is; HTML is reduced to its
// visible text. Binary and office formats are rejected.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	apperrors "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/errors"
)

// DefaultMaxSize is the largest file Read accepts when no limit is given.
const DefaultMaxSize int64 = 5 << 20

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 8000

var unsupported = map[string]bool{
	".pdf": true, ".docx": true, ".doc": true, ".xlsx": true, ".xls": true,
	".pptx": true, ".ppt": true, ".odt": true, ".zip": true, ".gz": true,
	".tar": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".exe": true, ".so": true, ".dll": true, ".bin": true,
}

// Content is the extracted text of one file.
type Content struct {
	Path     string
	Text     string
	Size     int64
	Metadata map[string]string
}

// ExtractionError is returned for a file that could not be read. It wraps
// ErrExtraction or ErrUnsupportedFormat.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsUnsupported reports whether err marks a file format the extractor
// skips rather than a read failure.
func IsUnsupported(err error) bool {
	return errors.Is(err, apperrors.ErrUnsupportedFormat)
}

// Extractor reads files up to MaxSize bytes.
type Extractor struct {
	MaxSize int64
}

func New(maxSize int64) *Extractor {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Extractor{MaxSize: maxSize}
}

// Read extracts the text of path.
func (x *Extractor) Read(path string) (Content, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if unsupported[ext] {
		return Content{}, &ExtractionError{Path: path, Err: fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, ext)}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Content{}, &ExtractionError{Path: path, Err: fmt.Errorf("%w: %v", apperrors.ErrExtraction, err)}
	}
	if info.IsDir() {
		return Content{}, &ExtractionError{Path: path, Err: fmt.Errorf("%w: is a directory", apperrors.ErrExtraction)}
	}
	if info.Size() > x.MaxSize {
		return Content{}, &ExtractionError{Path: path, Err: fmt.Errorf("%w: %d bytes exceeds limit of %d", apperrors.ErrExtraction, info.Size(), x.MaxSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, &ExtractionError{Path: path, Err: fmt.Errorf("%w: %v", apperrors.ErrExtraction, err)}
	}
	if isBinary(data) {
		return Content{}, &ExtractionError{Path: path, Err: fmt.Errorf("%w: binary content", apperrors.ErrUnsupportedFormat)}
	}

	text := strings.ToValidUTF8(string(data), "�")
	c := Content{
		Path:     path,
		Size:     info.Size(),
		Metadata: map[string]string{"format": format(ext)},
	}
	switch ext {
	case ".html", ".htm":
		body, title, err := htmlText(text)
		if err != nil {
			return Content{}, &ExtractionError{Path: path, Err: fmt.Errorf("%w: parsing html: %v", apperrors.ErrExtraction, err)}
		}
		c.Text = body
		if title != "" {
			c.Metadata["title"] = title
		}
	default:
		c.Text = text
	}
	return c, nil
}

func isBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}

func format(ext string) string {
	switch ext {
	case ".html", ".htm":
		return "html"
	case ".md", ".markdown":
		return "markdown"
	default:
		return "text"
	}
}

// htmlText returns the visible text of an HTML document, one block per
// line, and its title.
func htmlText(content string) (string, string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", "", err
	}
	var sb strings.Builder
	var title string
	walk(doc, &sb, &title, 0)

	lines := strings.Split(sb.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), title, nil
}

func walk(n *html.Node, sb *strings.Builder, title *string, depth int) {
	if depth > 200 {
		return
	}
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "svg":
			return
		case "title":
			if n.FirstChild != nil && *title == "" {
				*title = strings.TrimSpace(n.FirstChild.Data)
			}
			sb.WriteString("\n")
		case "p", "div", "br", "li", "tr", "section", "article",
			"h1", "h2", "h3", "h4", "h5", "h6", "pre":
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb, title, depth+1)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "title":
			sb.WriteString("\n")
		}
	}
}
