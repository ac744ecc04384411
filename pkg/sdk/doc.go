// Package cardex is the Go client for semantic card retrieval.
//
// A card's title, description, type and link are embedded into one
// normalized vector and stored in an owner-scoped index. A free-text query
// returns the owner's single closest card, or nil when there is none.
//
//	client, _ := cardex.New(ctx,
//	    cardex.WithValkey("localhost:6379", ""),
//	    cardex.WithONNX("model.onnx", "tokenizer.json", 384),
//	)
//	defer client.Close()
//
//	_ = client.StoreCardEmbeddings(ctx, cardex.Card{
//	    ID: "c1", Title: "Rust ownership", Type: "note", OwnerID: "u1",
//	})
//	match, _ := client.QueryBestMatch(ctx, "rust ownership", "u1")
//
// The model loads on first use. Without an index option the client embeds
// nothing and every query is a miss (see Policy).
package cardex
