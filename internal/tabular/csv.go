package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readCSV читает текст с разделителями. Значения без типов:
// число распознаётся по записи, остальное — текст.
func readCSV(r io.Reader) (*Grid, error) {
	br := bufio.NewReader(r)

	if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	c := newCollector()
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		row := make([]Cell, len(record))
		for i, v := range record {
			row[i] = textOrNumber(v)
		}
		if !c.add(row) {
			break
		}
	}

	return c.grid(), nil
}

// sniffDelimiter выбирает разделитель по первой строке:
// запятая, точка с запятой или табуляция — что встречается чаще.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte{byte(d)}); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
