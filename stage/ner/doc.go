// Package ner extracts threat-intelligence entities from text.
//
// The Extractor combines an optional model-backed Tagger (HTTPTagger talks to
// a Hugging Face style token-classification endpoint) with a fixed set of
// pattern rules (CVE ids, ATT&CK technique ids, APT groups, malware family
// suffixes, well-known tools and exploits, IPv4 addresses, hashes, scripts).
// Results are filtered by confidence, stripped of noise tokens and
// deduplicated by (name, type), keeping the highest-confidence instance.
package ner
