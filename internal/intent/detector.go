// Package intent classifies freeform chat messages into coarse purchase
// intents and extracts quantity/color/size entities. Detection is a total
// function: any input yields a result, never an error.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

const (
	// matchedConfidence is assigned when a rule fires.
	matchedConfidence = 0.85
	// fallbackConfidence is assigned to the general-chat fallback.
	fallbackConfidence = 0.5
)

// intentRule pairs one intent with its ordered trigger patterns. Patterns
// are plain substrings checked against the normalized message.
type intentRule struct {
	intent   domain.Intent
	patterns []string
}

// ruleTable is evaluated in order; the first rule whose first matching
// pattern fires wins. Order is the tie-break, not specificity: a message
// with both a greeting and an order keyword resolves to greeting because
// greeting is checked first.
var ruleTable = []intentRule{
	{domain.IntentGreeting, []string{
		"сайн байна уу", "сайн уу", "сайхан байна уу", "мэнд", "өглөөний мэнд",
		"hello", "hi ", "hey", "sain uu", "sain bn uu",
	}},
	{domain.IntentPriceCheck, []string{
		"үнэ хэд", "ямар үнэтэй", "үнийн санал", "үнэ нь", "хэдээр", "үнэ",
		"how much", "price", "une hed",
	}},
	{domain.IntentStockCheck, []string{
		"байгаа юу", "бэлэн байгаа", "үлдэгдэл", "үлдсэн", "нөөц", "байна уу",
		"in stock", "available", "baigaa yu",
	}},
	{domain.IntentOrderCreate, []string{
		"захиалах", "захиалга өгөх", "захиалъя", "захиалья", "авъя", "авья",
		"авмаар байна", "худалдаж авах", "авах гэсэн",
		"order", "buy", "zahialah", "avii",
	}},
	{domain.IntentOrderStatus, []string{
		"захиалга хаана", "захиалгын төлөв", "миний захиалга", "хэзээ ирэх",
		"хүргэлт хаана", "хүргэгдсэн үү",
		"order status", "track my order", "where is my order",
	}},
	{domain.IntentProductInquiry, []string{
		"ямар өнгө", "ямар размер", "ямар хэмжээ", "хэмжээ нь", "материал",
		"дэлгэрэнгүй", "зураг байгаа", "талаар",
		"tell me about", "more info", "details",
	}},
	{domain.IntentThankYou, []string{
		"баярлалаа", "гялайлаа", "баярлаа", "thank you", "thanks", "bayrlalaa",
	}},
	{domain.IntentComplaint, []string{
		"гомдол", "буцаах", "буцаамаар", "чанар муу", "эвдэрхий", "асуудал гарлаа",
		"болохгүй байна", "complaint", "refund", "broken", "not working",
	}},
}

// quantityPattern captures an integer followed by a unit-of-count token.
var quantityPattern = regexp.MustCompile(`(\d+)\s*(?:ширхэг|шт|pcs|pieces|piece|units?)`)

// sizePattern matches letter sizes as standalone tokens, longest first so
// "xxl" is not read as "x"+"xl". Cyrillic text around latin tokens still
// produces word boundaries.
var sizePattern = regexp.MustCompile(`(?i)\b(xxxl|xxl|xl|xs|s|m|l)\b`)

// colorVocabulary is checked in order; the first substring hit wins.
var colorVocabulary = []string{
	"улбар шар", "улаан", "хар", "цагаан", "хөх", "цэнхэр", "ногоон", "шар",
	"ягаан", "саарал", "бор", "нил",
	"black", "white", "red", "blue", "green", "yellow", "pink", "gray",
	"grey", "brown", "orange", "purple",
}

// Detector classifies messages. It is stateless and safe for concurrent use.
type Detector struct{}

// NewDetector creates an intent detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect classifies a message and extracts entities. Empty or
// whitespace-only input falls through to general chat at 0.5 confidence.
func (d *Detector) Detect(message string) domain.IntentResult {
	normalized := normalize(message)

	result := domain.IntentResult{
		Intent:     domain.IntentGeneralChat,
		Confidence: fallbackConfidence,
	}

	if normalized != "" {
		for _, rule := range ruleTable {
			if matchesAny(normalized, rule.patterns) {
				result.Intent = rule.intent
				result.Confidence = matchedConfidence
				break
			}
		}
	}

	// Entity extraction always runs, independent of the matched intent.
	result.Entities = extractEntities(normalized)
	return result
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func matchesAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// extractEntities pulls quantity, color, and size out of the normalized
// text. Absent entities leave their fields unset.
func extractEntities(text string) domain.Entities {
	var entities domain.Entities

	if m := quantityPattern.FindStringSubmatch(text); m != nil {
		if qty, err := strconv.Atoi(m[1]); err == nil {
			entities.Quantity = &qty
		}
	}

	for _, color := range colorVocabulary {
		if strings.Contains(text, color) {
			entities.Color = color
			break
		}
	}

	if m := sizePattern.FindStringSubmatch(text); m != nil {
		entities.Size = strings.ToUpper(m[1])
	}

	return entities
}
