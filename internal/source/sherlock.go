package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/idhunt/internal/model"
)

// Sherlock errorType values.
const (
	SherlockStatusCode  = "status_code"
	SherlockMessage     = "message"
	SherlockResponseURL = "response_url"
)

// stringList decodes a JSON string or array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}
	var raw []any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(stringList, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// intList decodes a JSON number or array of numbers.
type intList []int

func (l *intList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] != '[' {
		var n int
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*l = intList{n}
		return nil
	}
	var raw []any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(intList, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	*l = out
	return nil
}

type sherlockSite struct {
	URL           string            `json:"url"`
	URLMain       string            `json:"urlMain"`
	URLProbe      string            `json:"urlProbe"`
	ErrorType     stringList        `json:"errorType"`
	ErrorCode     intList           `json:"errorCode"`
	ErrorMsg      stringList        `json:"errorMsg"`
	RegexCheck    string            `json:"regexCheck"`
	IsNSFW        bool              `json:"isNSFW"`
	Headers       map[string]string `json:"headers"`
	RequestMethod string            `json:"request_method"`
}

// sherlockTemplate converts the Sherlock "{}" placeholder.
func sherlockTemplate(s string) string {
	return strings.ReplaceAll(s, "{}", Placeholder)
}

// LoadSherlock decodes a Sherlock data.json manifest.
// The "$schema" key and entries that are not objects are ignored. A
// regexCheck the regexp package cannot compile is dropped and the entry is
// probed for every subject.
func LoadSherlock(r io.Reader) (*Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: sherlock: %w", ErrManifestFormat, err)
	}

	m := &Manifest{Name: "sherlock"}
	for name, msg := range raw {
		if strings.HasPrefix(name, "$") {
			continue
		}
		trimmed := bytes.TrimSpace(msg)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var s sherlockSite
		if err := json.Unmarshal(trimmed, &s); err != nil {
			m.Skipped = append(m.Skipped, "sherlock:"+name)
			continue
		}

		check := s.URL
		if s.URLProbe != "" {
			check = s.URLProbe
		}
		d := Descriptor{
			Name:        "sherlock:" + name,
			Kind:        KindSherlock,
			Targets:     model.KindUsername,
			URLTemplate: sherlockTemplate(check),
			ProfileURL:  sherlockTemplate(s.URL),
			Method:      s.RequestMethod,
			Headers:     s.Headers,
			NSFW:        s.IsNSFW,
			Rule: Rule{
				ErrorTypes:    s.ErrorType,
				ErrorCodes:    s.ErrorCode,
				ErrorMessages: s.ErrorMsg,
			},
		}
		if withPattern, err := d.WithSubjectPattern(s.RegexCheck); err == nil {
			d = withPattern
		}
		m.add(d)
	}
	m.sort()
	return m, nil
}
