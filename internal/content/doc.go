// Package content produces the text for outgoing posts.
//
// A Fetcher cycles through public JSON APIs in random order and builds a
// post from the first usable response; when every source fails (or when
// the network is deliberately skipped) it serves from a built-in message
// pool instead, so a post is always available. Hashtags derives the tag
// list a post is published with.
package content
