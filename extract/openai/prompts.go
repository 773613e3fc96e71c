package openai

const extractionResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string", "enum": ["Company", "Contact", "Deal"]},
          "attributes": {"type": "object"}
        },
        "required": ["name", "type"],
        "additionalProperties": false
      }
    },
    "relationships": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "source": {"type": "string"},
          "target": {"type": "string"},
          "type": {"type": "string"},
          "fact": {"type": "string"}
        },
        "required": ["source", "target", "type", "fact"],
        "additionalProperties": false
      }
    }
  },
  "required": ["entities", "relationships"],
  "additionalProperties": false
}`

const extractionPromptTemplate = `Extract business entities and their relationships from the given email text and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Entity rules:

Company: a business organization with a legitimate business name.
- INCLUDE only real company names with proper nouns ("Acme Corporation", "Google LLC").
- EXCLUDE text containing "URL", bare domain names, email addresses, link text, industry
  categories, physical locations and generic phrases like "Click here".
- Put domain, industry and location in "attributes", never as separate entities.

Contact: a real person with a full name in a professional context.
- INCLUDE full names of actual people ("Sarah Johnson", "Alex Chen").
- EXCLUDE email display names of lists or bots, bare email addresses, bare phone numbers,
  job titles without names and social profile URLs.
- Put email, phone and title in "attributes", never as separate entities.

Deal: a named sales opportunity or business transaction.
- INCLUDE named opportunities ("Q4 Enterprise License - Acme Corp").
- EXCLUDE money amounts alone, stage names alone and generic product names.
- Put amount (integer dollars), stage and products in "attributes".

Relationship rules:
- "source" and "target" must exactly match entity names from the "entities" array.
- "type" is an UPPER_SNAKE_CASE verb phrase like WORKS_AT, NEGOTIATING, SUPPLIES.
- "fact" is one sentence stating the relationship as evidenced by the text.
- Include only relationships explicitly supported by the text. Do not hallucinate.
- If nothing qualifies, return empty arrays for both keys.

Example:
Input: "From: Sarah Johnson Subject: Q4 renewal Sarah Johnson, VP of Sales at Acme Corporation, confirmed the Q4 Enterprise Renewal is in negotiation at $120,000."
Output:
{
  "entities": [
    {"name": "Acme Corporation", "type": "Company", "attributes": {}},
    {"name": "Sarah Johnson", "type": "Contact", "attributes": {"title": "VP of Sales"}},
    {"name": "Q4 Enterprise Renewal", "type": "Deal", "attributes": {"stage": "negotiation", "amount": 120000}}
  ],
  "relationships": [
    {"source": "Sarah Johnson", "target": "Acme Corporation", "type": "WORKS_AT", "fact": "Sarah Johnson is VP of Sales at Acme Corporation."},
    {"source": "Acme Corporation", "target": "Q4 Enterprise Renewal", "type": "NEGOTIATING", "fact": "Acme Corporation is negotiating the Q4 Enterprise Renewal."}
  ]
}`
