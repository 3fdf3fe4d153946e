// Package lang detects which regional language variant a message is written in.
//
// # Detection
//
// Detection is lexical only. Each candidate language (Swahili, Luo, Gikuyu and
// Sheng) has a fixed keyword list; a keyword scores 1 if it occurs anywhere in the
// lowercased text. English gets a flat bonus of 2 when a common English function
// word appears as a whole word.
//
// The scores are turned into shares of the total and checked against an ordered
// rule list:
//
//  1. Luo share > 0.6
//  2. Gikuyu share > 0.6
//  3. Swahili share > 0.6
//  4. Sheng share > 0.4
//  5. English-like text
//  6. highest raw score, ties resolved sw, luo, kik, sheng, en
//
// Empty input falls through to the last rule and yields Swahili.
//
// # Reply language
//
// Sheng is detected but never replied in: ReplyCode collapses it to Swahili and
// DisplayName shows it as Swahili.
package lang
