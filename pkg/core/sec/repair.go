package sec

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Regulator submissions wrap the ownership document in non-XML transport
// framing and occasionally emit unescaped entities. Parsing is a two-tier
// strict -> tolerant -> repair-and-retry policy, modeled as an explicit state
// machine so the repair path is testable on its own.

// ParseState tracks one document through the repair pipeline.
type ParseState int

const (
	StateUnparsed ParseState = iota
	StateStrictFailed
	StateRepaired
	StateParsed
	StateFailed
)

func (s ParseState) String() string {
	switch s {
	case StateUnparsed:
		return "unparsed"
	case StateStrictFailed:
		return "strict-failed"
	case StateRepaired:
		return "repaired"
	case StateParsed:
		return "parsed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ParseResult is the outcome of running the repair machine over a document.
type ParseResult struct {
	State ParseState
	Doc   *OwnershipDocument
	// Content holds the (possibly repaired) document bytes. When State is
	// StateParsed after a repair, callers persist this over the original.
	Content  []byte
	Repaired bool
}

// ParseWithRepair drives the machine to a terminal state:
//
//	Unparsed -> Parsed
//	Unparsed -> StrictFailed -> Repaired -> Parsed
//	Unparsed -> StrictFailed -> Failed        (root element not found)
//	Unparsed -> StrictFailed -> Repaired -> Failed
func ParseWithRepair(content []byte) ParseResult {
	res := ParseResult{State: StateUnparsed, Content: content}

	doc, err := strictParse(content)
	if err == nil {
		res.State = StateParsed
		res.Doc = doc
		return res
	}
	res.State = StateStrictFailed

	repaired, err := tolerantRepair(content)
	if err != nil {
		res.State = StateFailed
		return res
	}
	res.State = StateRepaired
	res.Content = repaired
	res.Repaired = true

	doc, err = strictParse(repaired)
	if err != nil {
		res.State = StateFailed
		return res
	}
	res.State = StateParsed
	res.Doc = doc
	return res
}

// strictParse is the first tier: the fragment must already be well-formed.
func strictParse(content []byte) (*OwnershipDocument, error) {
	var doc OwnershipDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// tolerantRepair re-parses the fragment with the lenient HTML tokenizer,
// locates the ownership document root, and re-serializes just that subtree.
// The HTML parser lowercases element names, so the serialization is mapped
// back to the document type's canonical casing before the strict retry.
func tolerantRepair(content []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("tolerant parse: %w", err)
	}

	root := doc.Find("ownershipdocument").First()
	if root.Length() == 0 {
		return nil, fmt.Errorf("tolerant parse: ownership document root not found")
	}

	fragment, err := goquery.OuterHtml(root)
	if err != nil {
		return nil, fmt.Errorf("serialize repaired fragment: %w", err)
	}

	repaired := xmlDeclaration + canonicalizeTags(fragment)
	return []byte(repaired), nil
}

const xmlDeclaration = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"

// canonicalTags lists every element the extractor consumes. The repair pass
// only needs to restore casing for these; unknown elements are ignored by the
// strict parser regardless of case.
var canonicalTags = []string{
	"ownershipDocument",
	"documentType",
	"reportingOwner",
	"reportingOwnerId",
	"rptOwnerCik",
	"rptOwnerName",
	"nonDerivativeTable",
	"nonDerivativeTransaction",
	"securityTitle",
	"transactionDate",
	"transactionCoding",
	"transactionCode",
	"transactionAmounts",
	"transactionShares",
	"transactionPricePerShare",
}

func canonicalizeTags(fragment string) string {
	for _, tag := range canonicalTags {
		lower := strings.ToLower(tag)
		if lower == tag {
			continue
		}
		fragment = strings.ReplaceAll(fragment, "<"+lower, "<"+tag)
		fragment = strings.ReplaceAll(fragment, "</"+lower, "</"+tag)
	}
	return fragment
}
