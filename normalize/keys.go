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


package normalize

import (
	"regexp"
	"strings"
)

var (
	emailRe      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	slugRe       = regexp.MustCompile(`[^a-z0-9]+`)
	corpSuffixRe = regexp.MustCompile(`corp|corporation|inc|llc|ltd`)
)

// CompanyDomain derives a deduplication domain from a company name.
//
// A name that already looks like a domain (contains a dot, no spaces) is
// used as-is. Otherwise the first word is lowercased, corporate suffixes
// are stripped and ".com" is appended. The fallback is approximate; "Acme
// Corporation" and "acme.com" converge, but unusual TLDs do not.
func CompanyDomain(name string) string {
	if name == "" {
		return ""
	}

	if strings.Contains(name, ".") && !strings.Contains(name, " ") {
		return strings.ToLower(name)
	}

	base := strings.ToLower(strings.Fields(name)[0])
	base = corpSuffixRe.ReplaceAllString(base, "")
	return base + ".com"
}

// CleanCompanyName strips address and domain noise from a company name so
// full-text search matches the human-readable form.
func CleanCompanyName(name string) string {
	if strings.ContainsAny(name, "@") || strings.Contains(name, ".com") || strings.Contains(name, ".io") {
		name, _, _ = strings.Cut(name, "@")
		name, _, _ = strings.Cut(name, ".com")
		name, _, _ = strings.Cut(name, ".io")
	}
	return strings.TrimSpace(name)
}

// ContactEmail extracts a contact's email: the "email" attribute when
// present, otherwise the first address embedded in the node name. Returns
// "" when neither yields one.
func ContactEmail(name string, attributes map[string]any) string {
	if v, ok := attributes["email"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return emailRe.FindString(name)
}

// Slugify converts text to a deterministic slug:
// "Q4 Enterprise Deal" becomes "q4-enterprise-deal".
func Slugify(text string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(text), "-"), "-")
}

// DealKey derives a deal's deduplication key. CRM ids win over slugs; an
// empty slug falls back to the extracted node's uuid so every deal keeps a
// stable key.
func DealKey(name, uuid string, attributes map[string]any) string {
	for _, attr := range []string{"hubspot_deal_id", "deal_id"} {
		if v, ok := attributes[attr]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	if slug := Slugify(name); slug != "" {
		return slug
	}
	return uuid
}
