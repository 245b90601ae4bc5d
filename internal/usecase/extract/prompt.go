package extract

import (
	"encoding/json"

	"github.com/chronolens/chronolens/internal/domain/llm"
)

// toolSystemMessage primes the extraction model for tool use.
const toolSystemMessage = "You are a helpful search assistant. Use the supplied tools to search the database and assist the user. If the user requests recent results, default to the last 48 hours."

// userMessageFormat carries the raw chat turn plus the reference time so
// relative phrases ("yesterday", "this week") resolve deterministically.
const userMessageFormat = "USER MESSAGE: %s\n(CURRENT TIME: %s)"

const referenceTimeLayout = "2006-01-02T15:04:05Z"

// toolName is the function the extraction model is asked to call.
const toolName = "activity_search"

// callPrefix marks a textual tool invocation emitted by models that answer
// in the content channel instead of the tool-call channel.
const callPrefix = "<function=" + toolName + ">"

var searchFunction = llm.Function{
	Name:        toolName,
	Description: "Searches captured screen and audio activity stored in the local index based on filters such as content type and timestamps.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"content_type": {
				"type": "string",
				"enum": ["OCR", "AUDIO", "ALL"],
				"description": "Type of screen/audio content to search for, default to ALL"
			},
			"from_time": {
				"type": "string",
				"description": "ISO timestamp to filter results after this time"
			},
			"to_time": {
				"type": "string",
				"description": "ISO timestamp to filter results before this time"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of results to return"
			},
			"search_substring": {
				"type": "string",
				"description": "Optional substring to filter text content"
			},
			"application": {
				"type": "string",
				"description": "Optional filter to only show results from this application"
			}
		},
		"required": ["content_type"]
	}`),
}
