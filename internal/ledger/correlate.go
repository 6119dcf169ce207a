package ledger

import (
	"strings"

	"scalping-core/pkg/broker"
)

// PositionCorrelator maps application trade identity onto broker positions.
// The broker has no native identity field, so the default implementation
// rides on the order comment; the interface exists so an exact-match scheme
// can replace it if the broker API ever grows one.
type PositionCorrelator interface {
	// Comment builds the order comment that embeds the trade identity,
	// truncated to the broker's comment-length limit.
	Comment(source Source, tradeID string) string
	// Match reports whether pos belongs to tradeID.
	Match(pos broker.Position, tradeID string) bool
}

// Broker-side comment field limit.
const maxCommentLen = 31

// CommentCorrelator correlates via `<PREFIX>_<trade_id>` comments. Matching
// prefers an exact token after prefix stripping and only then falls back to
// substring containment. The substring fallback is a heuristic: it is not
// provably collision-free when one id appears inside another comment, which
// is why ids are kept fixed-length.
type CommentCorrelator struct {
	ManualPrefix string
	BotPrefix    string
}

// NewCommentCorrelator returns the correlator with the standard prefixes.
func NewCommentCorrelator() *CommentCorrelator {
	return &CommentCorrelator{ManualPrefix: "API_TRADE_", BotPrefix: "BOT_"}
}

func (c *CommentCorrelator) Comment(source Source, tradeID string) string {
	prefix := c.ManualPrefix
	if source == SourceBot {
		prefix = c.BotPrefix
	}
	comment := prefix + tradeID
	if len(comment) > maxCommentLen {
		comment = comment[:maxCommentLen]
	}
	return comment
}

func (c *CommentCorrelator) Match(pos broker.Position, tradeID string) bool {
	if pos.Comment == "" || tradeID == "" {
		return false
	}
	// Exact token after prefix stripping.
	for _, prefix := range []string{c.ManualPrefix, c.BotPrefix} {
		if len(pos.Comment) > len(prefix) && pos.Comment[:len(prefix)] == prefix {
			if pos.Comment[len(prefix):] == tradeID {
				return true
			}
		}
	}
	// Substring fallback for comments the broker rewrote or truncated.
	return strings.Contains(pos.Comment, tradeID)
}

// FindIn returns the first position matching tradeID, or nil.
func (c *CommentCorrelator) FindIn(positions []broker.Position, tradeID string) *broker.Position {
	for i := range positions {
		if c.Match(positions[i], tradeID) {
			return &positions[i]
		}
	}
	return nil
}
