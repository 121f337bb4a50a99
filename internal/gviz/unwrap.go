package gviz

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Unwrap strips the JSONP-style wrapper GViz puts around its payload,
// e.g. "/*O_o*/\ngoogle.visualization.Query.setResponse({...});", and
// decodes the JSON object between the first '{' and the last '}'.
func Unwrap(body []byte) (*Grid, error) {
	start := bytes.IndexByte(body, '{')
	end := bytes.LastIndexByte(body, '}')
	if start < 0 || end < 0 || end < start {
		return nil, ErrMalformedResponse
	}

	var g Grid
	if err := json.Unmarshal(body[start:end+1], &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if g.Status == "error" {
		msg := "status error"
		if len(g.Errors) > 0 {
			msg = g.Errors[0].DetailedMessage
			if msg == "" {
				msg = g.Errors[0].Message
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, msg)
	}
	return &g, nil
}
