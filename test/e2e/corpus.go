package e2e

import (
	"fmt"
	"image/color"
	"strings"
)

// Photo colours used on corpus pages. They are far apart so image queries separate cleanly.
var (
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	Blue  = color.RGBA{B: 255, A: 255}
)

// Document is one generated PDF.
type Document struct {
	Name  string
	Pages []PageSpec
}

// QueryTestCase names the page a query must rank first.
type QueryTestCase struct {
	Query       string
	Document    string
	Page        int
	Description string
}

// Corpus holds the documents and the queries run against them.
type Corpus struct {
	Documents []Document
	// TestCases use terms that occur on exactly one page.
	TestCases []QueryTestCase
	// TypoCases misspell one term by a single edit, as OCR tends to.
	TypoCases []QueryTestCase
}

func page(photo *color.RGBA, lines ...string) PageSpec {
	return PageSpec{Lines: lines, Photo: photo}
}

// BuildCorpus returns ten two-page documents with one query per page.
func BuildCorpus() *Corpus {
	docs := []Document{
		{"quarterly-report.pdf", []PageSpec{
			page(&Red, "quarterly revenue grew across northern markets", "subscription renewals offset weaker hardware sales", "figure one shows revenue by region"),
			page(nil, "operating margin narrowed after freight surcharges", "inventory writedowns hit the consumer division", "guidance for next year remains unchanged"),
		}},
		{"botany-field-guide.pdf", []PageSpec{
			page(nil, "ferns reproduce through spores rather than seeds", "moist shaded ravines host dense fern colonies", "the bracken species spreads by rhizomes"),
			page(&Green, "orchids attract pollinators with elaborate petals", "some orchids mimic female wasps", "epiphytic orchids cling to tree bark"),
		}},
		{"ocean-survey.pdf", []PageSpec{
			page(&Blue, "coral bleaching followed the marine heatwave", "reef transects recorded widespread whitening", "photograph of the surveyed reef shelf"),
			page(nil, "plankton blooms peaked during upwelling season", "nutrient rich currents fed the bloom", "chlorophyll readings doubled offshore"),
		}},
		{"espresso-manual.pdf", []PageSpec{
			page(nil, "descale the boiler every three months", "use citric acid solution for descaling", "never immerse the machine in water"),
			page(nil, "grind size controls extraction time", "finer grounds slow the espresso shot", "tamp with thirty pounds of pressure"),
		}},
		{"bicycle-maintenance.pdf", []PageSpec{
			page(nil, "lubricate the chain after riding in rain", "wipe excess oil from the derailleur", "check tyre pressure weekly"),
			page(nil, "adjust brake pads so they meet the rim squarely", "replace worn cables before they fray", "true the wheel using spoke tension"),
		}},
		{"tax-guide.pdf", []PageSpec{
			page(nil, "deductible expenses include home office costs", "keep receipts for seven years", "mileage logs support vehicle claims"),
			page(nil, "capital gains are taxed when assets are sold", "losses can offset gains in the same period", "dividends receive a separate allowance"),
		}},
		{"astronomy-notes.pdf", []PageSpec{
			page(nil, "jupiter has at least ninety five moons", "the great red spot is a persistent storm", "galilean moons are visible through binoculars"),
			page(nil, "neutron stars spin hundreds of times per second", "pulsars emit beams of radio waves", "a teaspoon of neutron matter weighs billions of tonnes"),
		}},
		{"sourdough-recipes.pdf", []PageSpec{
			page(nil, "feed the starter with equal flour and water", "a lively starter doubles within six hours", "discard half before each feeding"),
			page(nil, "shape the loaf and proof overnight in the fridge", "score the dough before baking", "bake covered for twenty minutes"),
		}},
		{"network-runbook.pdf", []PageSpec{
			page(nil, "restart the dns resolver if lookups stall", "flush cached records after changing zones", "escalate persistent outages to the on call engineer"),
			page(nil, "rotate tls certificates before they expire", "renewal runs nightly through the acme client", "alert when validity drops below fourteen days"),
		}},
		{"birdwatching-log.pdf", []PageSpec{
			page(nil, "a kestrel hovered above the hedgerow", "three lapwings crossed the flooded meadow", "heron fishing at dawn near the weir"),
			page(nil, "swifts arrived late this spring", "nesting boxes under the eaves stayed empty", "a pair of wagtails fed along the river"),
		}},
	}
	queries := map[string][2]string{
		"quarterly-report.pdf":    {"quarterly revenue", "freight surcharges"},
		"botany-field-guide.pdf":  {"spores ravines", "orchids pollinators"},
		"ocean-survey.pdf":        {"coral bleaching", "plankton upwelling"},
		"espresso-manual.pdf":     {"descale boiler", "grind extraction"},
		"bicycle-maintenance.pdf": {"chain derailleur", "brake pads"},
		"tax-guide.pdf":           {"deductible receipts", "capital gains"},
		"astronomy-notes.pdf":     {"jupiter moons", "pulsars radio"},
		"sourdough-recipes.pdf":   {"starter flour", "loaf proof"},
		"network-runbook.pdf":     {"dns resolver", "tls certificates"},
		"birdwatching-log.pdf":    {"kestrel hedgerow", "swifts nesting"},
	}

	c := &Corpus{Documents: docs}
	for _, d := range docs {
		for i, q := range queries[d.Name] {
			c.TestCases = append(c.TestCases, QueryTestCase{
				Query:       q,
				Document:    d.Name,
				Page:        i + 1,
				Description: fmt.Sprintf("%s page %d", strings.TrimSuffix(d.Name, ".pdf"), i+1),
			})
		}
	}
	c.TypoCases = []QueryTestCase{
		{Query: "quartorly revenue", Document: "quarterly-report.pdf", Page: 1, Description: "vowel swap"},
		{Query: "plankten upwelling", Document: "ocean-survey.pdf", Page: 2, Description: "vowel swap in second word"},
		{Query: "kestral hedgerow", Document: "birdwatching-log.pdf", Page: 1, Description: "ocr style substitution"},
		{Query: "capitol gains", Document: "tax-guide.pdf", Page: 2, Description: "homophone"},
	}
	return c
}

// PageLines returns the lines of page (1-based) of the named document.
func (c *Corpus) PageLines(name string, pageNum int) []string {
	for _, d := range c.Documents {
		if d.Name == name && pageNum >= 1 && pageNum <= len(d.Pages) {
			return d.Pages[pageNum-1].Lines
		}
	}
	return nil
}
