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


package webhook

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// payloadSchema constrains incoming deliveries before any work happens.
// Only the routing fields are required; the event body mirrors the Gmail
// messages.get shape and is validated loosely since providers add fields.
const payloadSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["external_user_id", "event"],
	"properties": {
		"external_user_id": {"type": "string", "minLength": 1},
		"account_id": {"type": "string"},
		"event": {
			"type": "object",
			"required": ["id"],
			"properties": {
				"id": {"type": "string", "minLength": 1},
				"threadId": {"type": "string"},
				"internalDate": {"type": "string"},
				"snippet": {"type": "string"},
				"payload": {
					"type": "object",
					"properties": {
						"mimeType": {"type": "string"},
						"headers": {
							"type": "array",
							"items": {
								"type": "object",
								"properties": {
									"name": {"type": "string"},
									"value": {"type": "string"}
								}
							}
						}
					}
				}
			}
		}
	}
}`

// compileSchema builds the payload validator once per handler.
func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(payloadSchema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webhook.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("webhook.json")
}
