// Package chronolens provides an in-process Go client for the chronolens
// conversational retrieval pipeline: it turns a chat turn into a structured
// activity query, retrieves matching screen and audio records, and grounds
// a model response in them.
//
//	client, _ := chronolens.New(
//	    chronolens.WithValves(map[string]string{
//	        "LLM_API_KEY":  os.Getenv("LLM_API_KEY"),
//	        "GET_RESPONSE": "true",
//	    }),
//	)
//
//	answer, _ := client.Ask(ctx, []chronolens.Message{
//	    {Role: "user", Content: "what was I reading about this morning?"},
//	}, nil)
//	fmt.Println(answer.Text)
//
// Streaming works the same way over a channel:
//
//	stream, _ := client.AskStream(ctx, msgs, nil)
//	for chunk := range stream.Chunks() {
//	    fmt.Print(chunk)
//	}
//	if err := stream.Wait(); err != nil { ... }
package chronolens
