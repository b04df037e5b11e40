// Package tokenizer turns text into token IDs for text models.
//
// Tokenizers are built on the tiktoken byte-pair encoder. A model directory
// can ship its own vocabulary as an artifact in the tiktoken file format, one
// token per line as base64 bytes followed by the rank:
//
//	aGVsbG8= 259
//
// Example usage:
//
//	f, err := os.Open("vocab.tiktoken")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	tok, err := tokenizer.LoadVocabulary(f, "vocab")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, _ := tok.Encode("hello world")
package tokenizer
