package fieesoft

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Shape identifies which normalization produced a Page.
type Shape int

const (
	// ShapePaged is a body that already carried a "content" key.
	ShapePaged Shape = iota + 1
	// ShapeList is a bare JSON array wrapped as a single page.
	ShapeList
	// ShapeRaw is any other body, wrapped as {content: body}.
	ShapeRaw
)

func (s Shape) String() string {
	switch s {
	case ShapePaged:
		return "paged"
	case ShapeList:
		return "list"
	case ShapeRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Page is the normalized search result.
type Page struct {
	Shape         Shape
	Content       any
	Number        int
	Size          int
	TotalElements int
}

// Map renders the page in its wire shape. Raw pages carry only content.
func (p *Page) Map() map[string]any {
	if p.Shape == ShapeRaw {
		return map[string]any{"content": p.Content}
	}
	return map[string]any{
		"content":       p.Content,
		"number":        p.Number,
		"size":          p.Size,
		"totalElements": p.TotalElements,
	}
}

// MarshalJSON implements json.Marshaler.
func (p *Page) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// Classify normalizes a decoded body. The checks run in a fixed order:
// object with "content", then array, then anything else.
func Classify(body any) *Page {
	if obj, ok := body.(map[string]any); ok {
		if content, ok := obj["content"]; ok {
			n := lenOf(content)
			return &Page{
				Shape:         ShapePaged,
				Content:       content,
				Number:        toInt(obj, "number", 0),
				Size:          toInt(obj, "size", n),
				TotalElements: toInt(obj, "totalElements", n),
			}
		}
	}
	if list, ok := body.([]any); ok {
		return &Page{
			Shape:         ShapeList,
			Content:       list,
			Number:        0,
			Size:          len(list),
			TotalElements: len(list),
		}
	}
	return &Page{Shape: ShapeRaw, Content: body}
}

// toInt coerces obj[key] to an int. Missing keys and values that cannot be
// read as a number fall back to def.
func toInt(obj map[string]any, key string, def int) int {
	v, ok := obj[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return truncFloat(f, def)
		}
	case float64:
		return truncFloat(n, def)
	case int:
		return n
	case int64:
		return int(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// truncFloat truncates f toward zero. NaN, infinities and values outside
// the int64 range yield def.
func truncFloat(f float64, def int) int {
	if math.IsNaN(f) || f >= 1<<63 || f < -(1<<63) {
		return def
	}
	return int(f)
}

func lenOf(v any) int {
	switch c := v.(type) {
	case []any:
		return len(c)
	case map[string]any:
		return len(c)
	case string:
		return utf8.RuneCountInString(c)
	default:
		return 0
	}
}

var errTrailingData = errors.New("unexpected data after JSON value")

// decodeJSON decodes a single JSON value keeping numbers as json.Number so
// identifiers pass through without float rounding.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}
