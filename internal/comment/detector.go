// Package comment decides whether a public social comment deserves an
// automated reply and builds the reply text. Decisions are pure functions
// with safe defaults; no input can produce an error.
package comment

import (
	"fmt"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// ignoreList holds bare reaction/acknowledgment comments that never warrant
// a reply. Compared by exact equality against the normalized comment.
var ignoreList = map[string]bool{
	"ok":      true,
	"okay":    true,
	"okey":    true,
	"за":      true,
	"заа":     true,
	"тийм":    true,
	"yes":     true,
	"no":      true,
	"lol":     true,
	"haha":    true,
	"хаха":    true,
	"хехе":    true,
	"гоё":     true,
	"гое":     true,
	"сайхан":  true,
	"nice":    true,
	"wow":     true,
	"good":    true,
	"амжилт":  true,
	"congrats": true,
}

// inquiryStems are substrings that signal a purchase-related question:
// price, ordering, availability, delivery, contact, timing, generic
// question words, and interest words. One Aho-Corasick pass covers all of
// them regardless of list size.
var inquiryStems = []string{
	"үнэ", "хэд", "price", "how much",
	"захиал", "авъя", "авья", "авмаар", "авах", "order", "buy",
	"байгаа", "бэлэн", "үлдсэн", "available", "stock",
	"хүргэлт", "хүргэ", "deliver", "shipping",
	"утас", "дугаар", "холбогдох", "холбоо", "contact", "инбокс", "inbox",
	"хэзээ", "хаана", "хаанаас", "when", "where",
	"яаж", "юу вэ", "ямар",
	"сонирхож", "сонирхол", "interested",
}

var inquiryMatcher = ahocorasick.NewStringMatcher(inquiryStems)

// ShouldReply reports whether a comment warrants an automated reply.
// Decision order: too short -> no; emoji-only -> no; bare reaction word ->
// no; inquiry stem -> yes; trailing question mark -> yes; otherwise no.
func ShouldReply(comment string) bool {
	normalized := strings.ToLower(strings.TrimSpace(comment))

	if len([]rune(normalized)) < 2 {
		return false
	}
	if isEmojiOnly(normalized) {
		return false
	}
	if ignoreList[normalized] {
		return false
	}

	if len(inquiryMatcher.Match([]byte(normalized))) > 0 {
		return true
	}

	return strings.HasSuffix(normalized, "?") || strings.HasSuffix(normalized, "？")
}

// isEmojiOnly reports whether the text consists entirely of emoji and
// whitespace.
func isEmojiOnly(s string) bool {
	sawEmoji := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		case isEmojiRune(r):
			sawEmoji = true
		default:
			return false
		}
	}
	return sawEmoji
}

// isEmojiRune covers the common emoji blocks plus variation selectors and
// skin tone modifiers.
func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case r >= 0x2B00 && r <= 0x2BFF: // arrows, stars
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	case r == 0x2764 || r == 0x2757 || r == 0x2755:
		return true
	default:
		return false
	}
}

// GenerateReply builds the templated public reply. With a page username it
// points at the m.me deep link, otherwise at "our Messenger".
func GenerateReply(shopName, pageUsername string) string {
	if pageUsername != "" {
		return fmt.Sprintf(
			"Сайн байна уу! 😊 %s-д хандсанд баярлалаа. Дэлгэрэнгүй мэдээллийг m.me/%s хаягаар манай чатаас аваарай 👉",
			shopName, pageUsername,
		)
	}
	return fmt.Sprintf(
		"Сайн байна уу! 😊 %s-д хандсанд баярлалаа. Дэлгэрэнгүй мэдээллийг манай Messenger чатаас аваарай 👉",
		shopName,
	)
}

// ReplyKey builds the deterministic idempotency key for one comment reply.
// Callers persist it (or SETNX it in Redis) to dedupe webhook re-delivery.
// Graph ids are digits and underscores, so ":" keeps distinct (post, user)
// pairs from colliding the way a "_" separator would.
func ReplyKey(postID, userID string) string {
	return fmt.Sprintf("comment_reply_%s:%s", postID, userID)
}
