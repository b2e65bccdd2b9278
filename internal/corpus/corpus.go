// Package corpus reads and writes the crawl output: a JSON array of page
// records in crawl acceptance order.
package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidRecord = errors.New("invalid corpus record")
	ErrMalformed     = errors.New("malformed corpus file")
)

type Record struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// UnmarshalJSON accepts the older field names for the page text.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL             string  `json:"url"`
		Text            *string `json:"text"`
		CleanedMainText *string `json:"cleaned_main_text"`
		ProcessedText   *string `json:"processed_text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.URL = raw.URL
	switch {
	case raw.Text != nil:
		r.Text = *raw.Text
	case raw.CleanedMainText != nil:
		r.Text = *raw.CleanedMainText
	case raw.ProcessedText != nil:
		r.Text = *raw.ProcessedText
	default:
		r.Text = ""
	}
	return nil
}

func (r Record) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Load reads a corpus file in array form or as a stream of JSON objects
// (one per line). Every record must carry a URL.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

func Decode(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	if first == '[' {
		if err := json.NewDecoder(br).Decode(&records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else {
		dec := json.NewDecoder(br)
		for {
			var rec Record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: record %d: %v", ErrMalformed, len(records), err)
			}
			records = append(records, rec)
		}
	}

	for i, rec := range records {
		if strings.TrimSpace(rec.URL) == "" {
			return nil, fmt.Errorf("%w: record %d has no url", ErrInvalidRecord, i)
		}
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

// Save writes records as an indented JSON array. The file is replaced
// atomically so readers never observe a partial corpus.
func Save(path string, records []Record) error {
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".corpus-*.json")
	if err != nil {
		return fmt.Errorf("create temp corpus: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write corpus: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync corpus: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close corpus: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace corpus: %w", err)
	}
	return nil
}

// Fix rewrites a line-delimited corpus into array form. Array input is
// re-encoded unchanged apart from legacy text keys.
func Fix(in, out string) (int, error) {
	records, err := Load(in)
	if err != nil {
		return 0, err
	}
	if err := Save(out, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// NonEmpty drops records whose text is empty after trimming and reports how many were dropped.
func NonEmpty(records []Record) ([]Record, int) {
	kept := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Empty() {
			continue
		}
		kept = append(kept, rec)
	}
	return kept, len(records) - len(kept)
}
