package location

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// Sample is one immutable GPS fix. Alt and Spd are pointers so that a fix
// without altitude or speed serializes as null, not 0.
type Sample struct {
	Ts  time.Time `json:"ts"`
	Lat float64   `json:"lat"`
	Lon float64   `json:"lon"`
	Alt *float64  `json:"alt"`
	Spd *float64  `json:"spd"`
}

// EncodeJSONL writes samples as newline-delimited JSON, one object per line.
func EncodeJSONL(w io.Writer, samples []Sample) error {
	enc := json.NewEncoder(w)
	for _, s := range samples {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSONL renders samples to the gps_jsonl wire format.
func MarshalJSONL(samples []Sample) (string, error) {
	var buf bytes.Buffer
	if err := EncodeJSONL(&buf, samples); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DecodeJSONL parses newline-delimited JSON samples, skipping blank lines.
func DecodeJSONL(r io.Reader) ([]Sample, error) {
	var samples []Sample
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}
