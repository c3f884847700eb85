// Package mitre enriches entities with MITRE ATT&CK reference data.
//
// The catalog is read from a STIX 2 bundle. A primary Source (for example a
// remote mirror) is tried first and a local snapshot file second; the loaded
// catalog is cached with a TTL. Only technique-like entities (ttp,
// technique, tactic, mitre_technique) are looked up, by ATT&CK external id
// or by name, case-insensitively.
package mitre
