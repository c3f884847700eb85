package llm

import (
	"strings"

	"github.com/poiesic/threatgraph/core"
)

const systemPrompt = `You are a cyber threat intelligence analyst. You extract relationships
between named entities from threat reports and answer only with JSON.`

// buildPrompt lists the entities and asks for a JSON array of relations.
func buildPrompt(text string, entities []core.Entity) string {
	var b strings.Builder
	b.WriteString("Extract cybersecurity relationships from the following text.\n\n")
	b.WriteString("Text:\n")
	b.WriteString(text)
	b.WriteString("\n\nEntities:\n")
	for _, e := range entities {
		b.WriteString("- ")
		b.WriteString(e.Name)
		b.WriteString(" (")
		b.WriteString(string(e.Type))
		b.WriteString(")\n")
	}
	b.WriteString(`
Return a JSON array of relation objects. Each object must have:
- source_name (string)
- source_type (string)
- target_name (string)
- target_type (string)
- relationship_type (exploits, targets, uses, variant_of, communicates_with, derives_from, associated_with, detects, related_to)
- confidence (float between 0 and 1)
- description (max 50 words)

Output only a valid JSON array.
Begin extraction now.`)
	return b.String()
}
