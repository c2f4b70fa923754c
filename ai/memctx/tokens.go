package memctx

// EstimateTokens approximates the token count of text as one token per
// four bytes, rounded up, never less than one. Exact tokenization is
// model-specific and not worth a dependency for budget arithmetic.
func EstimateTokens(text string) int {
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
