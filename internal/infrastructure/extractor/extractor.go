package extractor

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dealpop/dashboard/internal/domain"
)

var pricePattern = regexp.MustCompile(`\$\s?\d{1,3}(,\d{3})*(\.\d{2})?`)

// HTMLExtractor reads product details out of a product page
type HTMLExtractor struct{}

// New creates an HTML product extractor
func New() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract parses page and returns the product it describes. A page without
// a title or a price is not a product page.
func (e *HTMLExtractor) Extract(page io.Reader, pageURL string) (*domain.CapturedProduct, error) {
	doc, err := goquery.NewDocumentFromReader(page)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	product := &domain.CapturedProduct{
		ProductName: title(doc),
		Price:       price(doc),
		ImageURL:    resolve(pageURL, image(doc)),
		Brand:       brand(doc),
		Vendor:      vendor(doc, pageURL),
		URL:         pageURL,
		Status:      domain.ProductStatusTracking,
		Variants:    variants(doc),
	}
	if product.ProductName == "" && product.Price == "" {
		return nil, fmt.Errorf("%w: no title or price on %s", domain.ErrExtractionFailed, pageURL)
	}
	if len(product.Variants) == 0 {
		product.Variants = nil
	}
	product.Color = variantValue(product.Variants, "color", "colour")
	product.Capacity = variantValue(product.Variants, "capacity", "storage", "size")
	return product, nil
}

func title(doc *goquery.Document) string {
	if h1 := text(doc.Find("h1").First()); h1 != "" {
		return h1
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return text(doc.Find("title").First())
}

// price prefers semantic price markup, then the first element whose own
// text carries a dollar amount
func price(doc *goquery.Document) string {
	semantic := doc.Find(`[itemprop*="price"], [class*="price"], [id*="price"]`).First()
	if content, ok := semantic.Attr("content"); ok && pricePattern.MatchString(content) {
		return pricePattern.FindString(content)
	}
	if match := pricePattern.FindString(semantic.Text()); match != "" {
		return match
	}

	var found string
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Is("script, style, noscript") {
			return true
		}
		own := s.Clone().Children().Remove().End().Text()
		if match := pricePattern.FindString(own); match != "" {
			found = match
			return false
		}
		return true
	})
	return found
}

func image(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && og != "" {
		return og
	}
	if src, ok := doc.Find(`img[src*="product"]`).First().Attr("src"); ok && src != "" {
		return src
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return src
}

func brand(doc *goquery.Document) string {
	if b, ok := doc.Find(`meta[property="product:brand"]`).Attr("content"); ok && b != "" {
		return strings.TrimSpace(b)
	}
	brandEl := doc.Find(`[itemprop="brand"]`).First()
	if name := text(brandEl.Find(`[itemprop="name"]`).First()); name != "" {
		return name
	}
	if content, ok := brandEl.Attr("content"); ok && content != "" {
		return strings.TrimSpace(content)
	}
	return text(brandEl)
}

func vendor(doc *goquery.Document, pageURL string) string {
	if site, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok && strings.TrimSpace(site) != "" {
		return strings.TrimSpace(site)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// variants collects the options currently chosen on the page
func variants(doc *goquery.Document) map[string]string {
	out := make(map[string]string)

	doc.Find("label[for]").Each(func(_ int, label *goquery.Selection) {
		id, _ := label.Attr("for")
		if id == "" {
			return
		}
		sel := doc.Find("select#" + cssEscape(id))
		if sel.Length() == 0 {
			return
		}
		if name, value := text(label), selectedOption(sel); name != "" && value != "" {
			out[name] = value
		}
	})

	doc.Find("select").Each(func(_ int, sel *goquery.Selection) {
		label := sel.Closest("label")
		if label.Length() == 0 {
			label = sel.Prev()
		}
		name := strings.TrimSpace(label.Clone().Find("select").Remove().End().Text())
		if value := selectedOption(sel); name != "" && value != "" {
			out[name] = value
		}
	})

	doc.Find(`input[type="radio"][checked]`).Each(func(_ int, radio *goquery.Selection) {
		name, _ := radio.Attr("name")
		if name == "" {
			name = "Option"
		}
		id, _ := radio.Attr("id")
		if id == "" {
			return
		}
		if value := text(doc.Find(`label[for="` + id + `"]`).First()); value != "" {
			out[name] = value
		}
	})

	doc.Find(`[aria-pressed="true"], .selected, .active`).Each(func(_ int, el *goquery.Selection) {
		if el.Is("option, a") || el.Closest("nav").Length() > 0 {
			return
		}
		value := text(el)
		if value == "" {
			return
		}
		name, _ := el.Closest("[data-variant-label]").Attr("data-variant-label")
		if name == "" {
			name, _ = el.Closest("fieldset").Attr("aria-label")
		}
		if name == "" {
			name = "Option"
		}
		out[name] = value
	})
	return out
}

func selectedOption(sel *goquery.Selection) string {
	opt := sel.Find("option[selected]").First()
	if opt.Length() == 0 {
		opt = sel.Find("option").First()
	}
	return text(opt)
}

func variantValue(variants map[string]string, keys ...string) string {
	for name, value := range variants {
		lower := strings.ToLower(name)
		for _, key := range keys {
			if strings.Contains(lower, key) {
				return value
			}
		}
	}
	return ""
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// resolve makes a relative image reference absolute against the page
func resolve(pageURL, ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

func cssEscape(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('\\')
		b.WriteRune(r)
	}
	return b.String()
}
