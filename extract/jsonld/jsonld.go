// Package jsonld extracts recipe attributes from schema.org Recipe markup
// embedded in HTML as application/ld+json blocks. Parsing is deterministic:
// the same document always produces the same result.
package jsonld

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/plateful/importer/extract"
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string {
	return "jsonld"
}

// Extract enumerates every ld+json script block in the fetched document and
// returns the first schema.org Recipe candidate that derives a non-blank
// name. Malformed JSON in one block skips that block only.
func (e *Extractor) Extract(_ context.Context, in *extract.Input) *extract.Result {
	if in.Document == nil {
		return extract.Fail(extract.CodeNoJSONLD, "no document to parse")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Document.Body))
	if err != nil {
		return extract.Fail(extract.CodeNoJSONLD, "document is not parseable HTML")
	}

	var candidates []Node
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		node, err := parseNode([]byte(sel.Text()))
		if err != nil {
			return
		}
		collectRecipes(node, &candidates)
	})

	for _, candidate := range candidates {
		if attrs := deriveAttributes(candidate, in.SourceURL); attrs != nil {
			return extract.Success(attrs)
		}
	}
	return extract.Fail(extract.CodeNoJSONLD, "no schema.org Recipe markup found")
}

// collectRecipes walks a decoded JSON-LD value in document order, gathering
// every object declaring a Recipe type. Recipes hide behind three wrapper
// shapes in the wild: top-level arrays, mainEntity/mainEntityOfPage, and
// @graph.
func collectRecipes(n Node, out *[]Node) {
	switch n.Kind {
	case KindList:
		for _, el := range n.List {
			collectRecipes(el, out)
		}
	case KindObject:
		if n.HasType("Recipe") {
			*out = append(*out, n)
			return
		}
		for _, wrapper := range []string{"mainEntity", "mainEntityOfPage", "@graph"} {
			if inner, ok := n.Field(wrapper); ok {
				collectRecipes(inner, out)
			}
		}
	}
}

// deriveAttributes maps a Recipe node to importable attributes. A blank
// name disqualifies the candidate and returns nil.
func deriveAttributes(n Node, sourceURL string) *extract.Attributes {
	name := n.FieldText("name")
	if name == "" {
		return nil
	}

	attrs := &extract.Attributes{
		Name:          name,
		Ingredients:   deriveIngredients(n),
		Instructions:  deriveInstructions(n),
		Notes:         n.FieldText("description"),
		SourceURL:     sourceURL,
		CoverImageURL: deriveImageURL(n),
	}
	if mins, ok := parseDurationMinutes(n.FieldText("prepTime")); ok {
		attrs.PrepTimeMinutes = &mins
	}
	if mins, ok := parseDurationMinutes(n.FieldText("cookTime")); ok {
		attrs.CookTimeMinutes = &mins
	}
	if servings, ok := deriveServings(n); ok {
		attrs.Servings = &servings
	}
	return attrs
}

func deriveIngredients(n Node) []string {
	field, ok := n.Field("recipeIngredient")
	if !ok {
		// pre-2013 schema.org vocabulary
		field, ok = n.Field("ingredients")
	}
	if !ok {
		return nil
	}

	var out []string
	for _, el := range field.Elements() {
		if text := strings.TrimSpace(el.Text()); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func deriveInstructions(n Node) []string {
	field, ok := n.Field("recipeInstructions")
	if !ok {
		return nil
	}
	return flattenSteps(field)
}

// flattenSteps normalizes the many shapes recipeInstructions takes: a bare
// string, a list of strings, HowToStep objects, nested HowToSections, and
// ItemList/ListItem wrappers.
func flattenSteps(n Node) []string {
	if n.Kind == KindObject && n.HasType("ItemList") {
		if items, ok := n.Field("itemListElement"); ok {
			return flattenSteps(items)
		}
		return nil
	}

	var out []string
	for _, el := range n.Elements() {
		switch {
		case el.Kind == KindString || el.Kind == KindNumber:
			if text := strings.TrimSpace(el.Str); text != "" {
				out = append(out, text)
			}
		case el.Kind == KindObject && el.HasType("HowToSection"):
			if items, ok := el.Field("itemListElement"); ok {
				out = append(out, flattenSteps(items)...)
			}
		case el.Kind == KindObject && el.HasType("ListItem"):
			if text := listItemText(el); text != "" {
				out = append(out, text)
			}
		case el.Kind == KindObject:
			if text := el.FieldText("text"); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}

func listItemText(n Node) string {
	item, ok := n.Field("item")
	if ok {
		if item.Kind == KindString {
			return strings.TrimSpace(item.Str)
		}
		if text := item.FieldText("text"); text != "" {
			return text
		}
		if name := item.FieldText("name"); name != "" {
			return name
		}
	}
	return n.FieldText("name")
}

var digitRun = regexp.MustCompile(`\d+`)

// deriveServings takes the first run of digits in recipeYield's string
// form, so "4 servings", "4-6", and the bare number 4 all yield 4.
func deriveServings(n Node) (int, bool) {
	field, ok := n.Field("recipeYield")
	if !ok {
		return 0, false
	}
	text := field.Text()
	match := digitRun.FindString(text)
	if match == "" {
		return 0, false
	}
	servings, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return servings, true
}

// deriveImageURL handles the three shapes schema.org image takes: a URL
// string, a list of either, or an ImageObject with a url member.
func deriveImageURL(n Node) string {
	field, ok := n.Field("image")
	if !ok {
		return ""
	}
	for _, el := range field.Elements() {
		switch el.Kind {
		case KindString:
			if url := strings.TrimSpace(el.Str); url != "" {
				return url
			}
		case KindObject:
			if url := el.FieldText("url"); url != "" {
				return url
			}
		}
	}
	return ""
}
