package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/kaspi-offer-tracker/models"
	"github.com/tidwall/gjson"
)

const actionParseMainPage = "parse_main_page"

var errUnbalanced = errors.New("unbalanced JSON object")

// Extractor pulls the embedded product document out of a product page.
type Extractor struct {
	marker     string
	categoryRe *regexp.Regexp
}

// NewExtractor builds an extractor for the given assignment marker
// (e.g. "BACKEND.components.item = ") and category key.
func NewExtractor(marker, categoryKey string) *Extractor {
	pattern := `"` + regexp.QuoteMeta(categoryKey) + `"\s*:\s*"((?:[^"\\\n]|\\.)*)"`
	return &Extractor{
		marker:     marker,
		categoryRe: regexp.MustCompile(pattern),
	}
}

// Extract decodes the product fields from html. Any missing marker, key or
// malformed value yields a ParseError carrying url.
func (e *Extractor) Extract(url string, html []byte) (*models.ProductRecord, error) {
	doc, err := e.LocateDocument(html)
	if err != nil {
		return nil, newParseError(actionParseMainPage, url, "item document not found", err)
	}
	if !gjson.Valid(doc) {
		return nil, newParseError(actionParseMainPage, url, "item document is not valid JSON", nil)
	}

	product := &models.ProductRecord{}

	id := gjson.Get(doc, "card.id")
	if !id.Exists() {
		return nil, newParseError(actionParseMainPage, url, "missing card.id", nil)
	}
	product.ID, err = strconv.ParseInt(strings.TrimSpace(id.String()), 10, 64)
	if err != nil {
		return nil, newParseError(actionParseMainPage, url, "card.id is not numeric", err)
	}

	title := gjson.Get(doc, "card.title")
	if !title.Exists() || title.Type != gjson.String {
		return nil, newParseError(actionParseMainPage, url, "missing card.title", nil)
	}
	product.Name = title.String()

	if categoryID := gjson.Get(doc, "card.categoryId"); categoryID.Exists() {
		product.CategoryID = categoryID.String()
	}

	specs := gjson.Get(doc, "specifications")
	if !specs.IsArray() {
		return nil, newParseError(actionParseMainPage, url, "missing specifications", nil)
	}
	var groups []SpecGroup
	if err := json.Unmarshal([]byte(specs.Raw), &groups); err != nil {
		return nil, newParseError(actionParseMainPage, url, "malformed specifications", err)
	}
	product.Specifications = NormalizeSpecifications(groups)

	images := gjson.Get(doc, "galleryImages")
	if !images.IsArray() {
		return nil, newParseError(actionParseMainPage, url, "missing galleryImages", nil)
	}
	product.Images = make([]json.RawMessage, 0)
	images.ForEach(func(_, value gjson.Result) bool {
		product.Images = append(product.Images, json.RawMessage(value.Raw))
		return true
	})

	category, err := e.Category(html)
	if err != nil {
		return nil, newParseError(actionParseMainPage, url, "category not found", err)
	}
	product.Category = category

	return product, nil
}

// LocateDocument returns the JSON object assigned after the marker. Script
// elements are searched first; the raw text is the fallback.
func (e *Extractor) LocateDocument(html []byte) (string, error) {
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html)); err == nil {
		var found string
		var scanErr error
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := s.Text()
			idx := strings.Index(text, e.marker)
			if idx < 0 {
				return true
			}
			found, scanErr = scanObject(text, idx+len(e.marker))
			return false
		})
		if found != "" || scanErr != nil {
			return found, scanErr
		}
	}

	text := string(html)
	idx := strings.Index(text, e.marker)
	if idx < 0 {
		return "", fmt.Errorf("marker %q not present", e.marker)
	}
	return scanObject(text, idx+len(e.marker))
}

// Category returns the first string literal assigned to the category key.
func (e *Extractor) Category(html []byte) (string, error) {
	m := e.categoryRe.FindSubmatch(html)
	if m == nil {
		return "", fmt.Errorf("pattern %s did not match", e.categoryRe.String())
	}
	var value string
	if err := json.Unmarshal(append(append([]byte{'"'}, m[1]...), '"'), &value); err != nil {
		return "", fmt.Errorf("decode category literal: %w", err)
	}
	return value, nil
}

// scanObject returns the balanced {...} value starting at or after start,
// honouring string literals and escapes so braces and newlines inside
// strings do not end the scan.
func scanObject(text string, start int) (string, error) {
	i := start
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\r' || text[i] == '\n') {
		i++
	}
	if i >= len(text) || text[i] != '{' {
		return "", fmt.Errorf("expected '{' after marker")
	}

	depth := 0
	inString := false
	escaped := false
	for j := i; j < len(text); j++ {
		c := text[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[i : j+1], nil
			}
		}
	}
	return "", errUnbalanced
}
