package comment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldReply_InquiryComments(t *testing.T) {
	cases := []string{
		"Үнэ хэд вэ",
		"энэ хэдээр байгаа",
		"Захиалга өгье",
		"хүргэлттэй юу",
		"Утасны дугаараа өгөөч",
		"how much is this",
		"is this available?",
		"Сонирхож байна",
	}

	for _, c := range cases {
		assert.True(t, ShouldReply(c), "comment: %q", c)
	}
}

func TestShouldReply_QuestionMarkAlone(t *testing.T) {
	// No inquiry stem, but phrased as a question.
	assert.True(t, ShouldReply("энийг өмссөн зураг бий юу?"))
	assert.True(t, ShouldReply("улаан бий юу？"))
}

func TestShouldReply_RejectsShortAndEmpty(t *testing.T) {
	for _, c := range []string{"", " ", "a", "й", "  \t "} {
		assert.False(t, ShouldReply(c), "comment: %q", c)
	}
}

func TestShouldReply_RejectsEmojiOnly(t *testing.T) {
	for _, c := range []string{"😍😍😍", "🔥 🔥", "❤️❤️", "👍👍"} {
		assert.False(t, ShouldReply(c), "comment: %q", c)
	}
}

func TestShouldReply_RejectsBareReactions(t *testing.T) {
	for _, c := range []string{"ok", "OK", "Тийм", "хаха", "nice", "гоё"} {
		assert.False(t, ShouldReply(c), "comment: %q", c)
	}
}

func TestShouldReply_RejectsPlainStatements(t *testing.T) {
	assert.False(t, ShouldReply("өнгө нь их таалагдлаа"))
	assert.False(t, ShouldReply("my friend has this one"))
}

func TestShouldReply_EmojiMixedWithInquiryStillReplies(t *testing.T) {
	assert.True(t, ShouldReply("😍 үнэ хэд вэ"))
}

func TestGenerateReply(t *testing.T) {
	withUsername := GenerateReply("Миа Шоп", "miashop")
	assert.Contains(t, withUsername, "m.me/miashop")
	assert.Contains(t, withUsername, "Миа Шоп")
	assert.Equal(t, 2, strings.Count(withUsername, "😊")+strings.Count(withUsername, "👉"))

	withoutUsername := GenerateReply("Миа Шоп", "")
	assert.NotContains(t, withoutUsername, "m.me/")
	assert.Contains(t, withoutUsername, "Messenger")
}

func TestReplyKey(t *testing.T) {
	assert.Equal(t, "comment_reply_post42:user7", ReplyKey("post42", "user7"))
	// Deterministic: same inputs, same key.
	assert.Equal(t, ReplyKey("post42", "user7"), ReplyKey("post42", "user7"))
	assert.NotEqual(t, ReplyKey("post42", "user7"), ReplyKey("post42", "user8"))
	// Graph post ids carry underscores ("<pageid>_<postid>"), so shifted
	// pairs must still produce distinct keys.
	assert.NotEqual(t, ReplyKey("a_b", "c"), ReplyKey("a", "b_c"))
}
