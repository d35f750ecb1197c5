// Package flatrag provides a Go client for flat-file semantic retrieval.
//
// Documents are split into line windows, embedded through an
// OpenAI-compatible endpoint and stored as JSON lines under a topic.
// Questions are embedded the same way and answered from the closest chunks,
// optionally by handing a prompt to a completion endpoint.
//
//	client, _ := flatrag.New(
//	    flatrag.WithDataDir("./data"),
//	    flatrag.WithEmbeddingEndpoint("http://localhost:8081/v1/embeddings", ""),
//	)
//	defer client.Close()
//
//	_, _ = client.Ingest(ctx, "animals", "docs/pets.md")
//	chunks, _ := client.Search(ctx, "animals", "what do cats do?", "category=pets")
//	answer, _ := client.Query(ctx, "animals", "what do cats do?")
package flatrag
