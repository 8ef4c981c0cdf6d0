package tokens

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/tjfontaine/relaycode/internal/core/domain"
)

// CountTransaction counts the description, the reasoning and every distinct
// file diff of tx with the counter for tx.Model.
func (r *Registry) CountTransaction(tx domain.Transaction) (int, error) {
	total := 0
	add := func(text string) error {
		if text == "" {
			return nil
		}
		n, err := r.CountText(tx.Model, text)
		if err != nil {
			return err
		}
		total += n
		return nil
	}

	if err := add(tx.Description); err != nil {
		return 0, err
	}
	if err := add(tx.Reasoning); err != nil {
		return 0, err
	}
	for _, path := range tx.FilePaths() {
		f, _ := tx.FileByPath(path)
		if err := add(f.Diff); err != nil {
			return 0, fmt.Errorf("count %s: %w", path, err)
		}
	}
	return total, nil
}

// Backfill fills the tokens field of every transaction that has none, in
// the "1,240" form the UI displays. Transactions that already carry a value
// are left alone. It returns how many were filled.
func (r *Registry) Backfill(txs []domain.Transaction) (int, error) {
	filled := 0
	for i := range txs {
		if txs[i].Tokens != "" {
			continue
		}
		n, err := r.CountTransaction(txs[i])
		if err != nil {
			return filled, fmt.Errorf("transaction %s: %w", txs[i].ID, err)
		}
		txs[i].Tokens = humanize.Comma(int64(n))
		filled++
	}
	return filled, nil
}
