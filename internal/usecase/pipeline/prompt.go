package pipeline

// finalResponseSystemMessage frames the response model's task over the
// injected grounding block.
const finalResponseSystemMessage = `You are a helpful AI assistant analyzing personal data from ChronoLens. Your task is to:

1. Understand the user's intent from their original query
2. Carefully analyze the provided results (audio/OCR data)
3. Give clear, relevant insights from the context, even if it's not directly related to the query

The data will be provided in XML tags:
- <user_query>: The original user question
- <search_parameters>: The parameters used to filter the data
- <context>: The results of the search

Focus on making connections between the user's intent and the retrieved data to provide meaningful analysis.`

// injectedMessageFormat is the synthetic grounding message inserted before
// the user's latest turn: original query, the parameters the retrieval ran
// with, and the aggregated context.
const injectedMessageFormat = `<user_query>
%s
</user_query>

<search_parameters>
%s
</search_parameters>

<context>
%s
</context>`

// maxCompletionTokens caps the response model's output.
const maxCompletionTokens = 3000

// outletSummaryFormat trails the assistant reply with the run's result count
// and search parameters when the outlet runs with metadata.
const outletSummaryFormat = "\n\nUsed %d results with search params:\n%s"
