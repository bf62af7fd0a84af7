package source

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/nao1215/idhunt/internal/model"
)

// Manifest is a loaded list of descriptors.
type Manifest struct {
	// Name identifies where the descriptors came from.
	Name string

	// Descriptors are the valid entries, sorted by name.
	Descriptors []Descriptor

	// Skipped names the entries that failed validation.
	Skipped []string
}

func (m *Manifest) add(d Descriptor) {
	if err := d.Validate(); err != nil {
		m.Skipped = append(m.Skipped, d.Name)
		return
	}
	m.Descriptors = append(m.Descriptors, d)
}

func (m *Manifest) sort() {
	sort.Slice(m.Descriptors, func(i, j int) bool { return m.Descriptors[i].Name < m.Descriptors[j].Name })
	sort.Strings(m.Skipped)
}

// wmnFile is the top-level shape of wmn-data.json and of email lists.
type wmnFile struct {
	Sites []wmnSite `json:"sites"`
}

type wmnSite struct {
	Name           string            `json:"name"`
	URICheck       string            `json:"uri_check"`
	URIPretty      string            `json:"uri_pretty"`
	PostBody       string            `json:"post_body"`
	Data           string            `json:"data"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers"`
	ExistsCode     int               `json:"e_code"`
	ExistsString   string            `json:"e_string"`
	MissingCode    int               `json:"m_code"`
	MissingString  string            `json:"m_string"`
	Category       string            `json:"cat"`
	InputOperation string            `json:"input_operation"`
	Valid          *bool             `json:"valid"`
}

func (s wmnSite) descriptor(prefix string, kind Kind, targets model.IdentifierKind) Descriptor {
	category := strings.ToLower(strings.TrimSpace(s.Category))
	body := s.PostBody
	if body == "" {
		body = s.Data
	}
	method := s.Method
	if method == "" && body != "" {
		method = "POST"
	}
	return Descriptor{
		Name:           prefix + s.Name,
		Kind:           kind,
		Targets:        targets,
		URLTemplate:    s.URICheck,
		ProfileURL:     s.URIPretty,
		Method:         method,
		Headers:        s.Headers,
		Body:           body,
		Category:       category,
		NSFW:           strings.Contains(category, "nsfw"),
		InputOperation: InputOperation(s.InputOperation),
		Rule: Rule{
			ExistsCode:    s.ExistsCode,
			ExistsString:  s.ExistsString,
			MissingCode:   s.MissingCode,
			MissingString: s.MissingString,
		},
	}
}

// LoadWhatsMyName decodes a WhatsMyName username list.
// Entries marked "valid": false are skipped.
func LoadWhatsMyName(r io.Reader) (*Manifest, error) {
	return loadWMN(r, "whatsmyname", "wmn:", KindSiteList, model.KindUsername)
}

// LoadEmailList decodes a WhatsMyName-style email list. Entries may carry
// method, data, headers and input_operation.
func LoadEmailList(r io.Reader) (*Manifest, error) {
	return loadWMN(r, "email-list", "emaillist:", KindEmailList, model.KindEmail)
}

func loadWMN(r io.Reader, name, prefix string, kind Kind, targets model.IdentifierKind) (*Manifest, error) {
	var f wmnFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestFormat, name, err)
	}
	m := &Manifest{Name: name}
	for _, s := range f.Sites {
		if s.Valid != nil && !*s.Valid {
			continue
		}
		d := s.descriptor(prefix, kind, targets)
		if d.Rule.ExistsCode == 0 {
			m.Skipped = append(m.Skipped, d.Name)
			continue
		}
		m.add(d)
	}
	m.sort()
	return m, nil
}

// LoadFile opens path and decodes it with load.
func LoadFile(path string, load func(io.Reader) (*Manifest, error)) (*Manifest, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided manifest path is intentional
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
