// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package batch

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	httpURLRe    = regexp.MustCompile(`https?://\S+`)
	wwwURLRe     = regexp.MustCompile(`www\.\S+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Sanitize cleans text for graph entity search.
//
// The steps run in a fixed order; reordering them changes the output:
//  1. Decode HTML entities (&amp; becomes &)
//  2. Strip HTML tags
//  3. Replace URLs with a [URL] placeholder
//  4. Replace @ with " at ", drop *
//  5. Collapse whitespace and trim
//
// Entities are decoded before tags are stripped so that &lt;b&gt; is treated
// as a tag, not left as literal text. A bare & is safe once decoded; only the
// entity form was problematic.
func Sanitize(text string) string {
	if text == "" {
		return text
	}

	text = html.UnescapeString(text)
	text = tagRe.ReplaceAllString(text, "")
	text = httpURLRe.ReplaceAllString(text, "[URL]")
	text = wwwURLRe.ReplaceAllString(text, "[URL]")
	text = strings.ReplaceAll(text, "@", " at ")
	text = strings.ReplaceAll(text, "*", "")
	text = whitespaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// CleanSender reduces a From header to a search-safe display form.
// "John Doe <john@x.com>" becomes "John Doe"; a bare address has its @
// replaced with " at ".
func CleanSender(sender string) string {
	if idx := strings.Index(sender, "<"); idx >= 0 {
		return strings.TrimSpace(sender[:idx])
	}
	return strings.ReplaceAll(sender, "@", " at ")
}
