package analysis

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/loqalabs/loqa-mic/internal/fault"
)

// Extract isolates the outermost JSON object in reply, from the first '{' to
// the last '}'. When the substring does not parse and repair is set, one
// jsonrepair pass is attempted. A failed extraction returns a nil document
// and an Extraction fault; callers treat it as a null analysis.
func Extract(reply string, repair bool) (json.RawMessage, error) {
	first := strings.IndexByte(reply, '{')
	last := strings.LastIndexByte(reply, '}')
	if first == -1 || last == -1 || last <= first {
		return nil, fault.New(fault.Extraction, "no JSON object found in the response")
	}
	candidate := reply[first : last+1]
	if doc, ok := compactObject(candidate); ok {
		return doc, nil
	}
	if repair {
		fixed, err := jsonrepair.JSONRepair(candidate)
		if err == nil {
			if doc, ok := compactObject(fixed); ok {
				return doc, nil
			}
		}
	}
	return nil, fault.New(fault.Extraction, "response JSON could not be parsed")
}

func compactObject(s string) (json.RawMessage, bool) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, false
	}
	out := buf.Bytes()
	if len(out) == 0 || out[0] != '{' {
		return nil, false
	}
	return json.RawMessage(out), true
}
