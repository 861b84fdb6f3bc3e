package core

// Summary is the aggregate of all amounts visible to a session.
type Summary struct {
	Amount Money `json:"amount"`
}

// Summarize sums the amounts of txs. It is the in-process counterpart of
// the SQL aggregate and yields zero for an empty slice.
func Summarize(txs []Transaction) Summary {
	var total Money
	for _, t := range txs {
		total = total.Add(t.Amount)
	}
	return Summary{Amount: total}
}
