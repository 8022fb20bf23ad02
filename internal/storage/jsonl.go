package storage

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

// JSONLSink writes one JSON object per record.
type JSONLSink struct {
	path    string
	columns []string
}

func (s *JSONLSink) Persist(records []models.ProductRecord) error {
	return writeAtomic(s.path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		enc := json.NewEncoder(bw)
		enc.SetEscapeHTML(false)

		for _, r := range records {
			obj := make(map[string]string, len(s.columns))
			for _, c := range s.columns {
				obj[c] = r.Get(c)
			}
			if err := enc.Encode(obj); err != nil {
				return err
			}
		}
		return bw.Flush()
	})
}
