package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var ErrEmptyCatalog = errors.New("empty catalog")

// Template - компонент методологии из общего каталога. Ключ (FactorID, Stage).
type Template struct {
	FactorID string
	Stage    string
	Order    int
	Text     string
}

func (t Template) Key() string {
	return t.FactorID + ":" + t.Stage
}

// Ref - шаблонный ключ из идентификатора клиента: "<factor-id>" или "<factor-id>:<stage>".
type Ref struct {
	FactorID string
	Stage    string
}

// ParseRef распознает шаблонный ключ. UUID никогда не считается ключом шаблона.
func ParseRef(identifier string) (Ref, bool) {
	if identifier == "" {
		return Ref{}, false
	}
	if uuid.Validate(identifier) == nil {
		return Ref{}, false
	}

	parts := strings.SplitN(identifier, ":", 3)
	if len(parts) > 2 {
		return Ref{}, false
	}
	if !validSlug(parts[0]) {
		return Ref{}, false
	}
	ref := Ref{FactorID: parts[0]}
	if len(parts) == 2 {
		if !validSlug(parts[1]) {
			return Ref{}, false
		}
		ref.Stage = parts[1]
	}
	return ref, true
}

type Catalog struct {
	templates []Template
	byKey     map[string]Template
	byFactor  map[string][]Template
}

func New(templates []Template) (*Catalog, error) {
	if len(templates) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		templates: make([]Template, 0, len(templates)),
		byKey:     make(map[string]Template, len(templates)),
		byFactor:  make(map[string][]Template),
	}
	for _, t := range templates {
		if !validSlug(t.FactorID) {
			return nil, fmt.Errorf("invalid factor id %q", t.FactorID)
		}
		if !validSlug(t.Stage) {
			return nil, fmt.Errorf("invalid stage %q in factor %q", t.Stage, t.FactorID)
		}
		if strings.TrimSpace(t.Text) == "" {
			return nil, fmt.Errorf("empty text for template %q", t.Key())
		}
		if _, ok := c.byKey[t.Key()]; ok {
			return nil, fmt.Errorf("duplicate template key %q", t.Key())
		}
		c.byKey[t.Key()] = t
		c.byFactor[t.FactorID] = append(c.byFactor[t.FactorID], t)
		c.templates = append(c.templates, t)
	}
	sort.SliceStable(c.templates, func(i, j int) bool {
		return c.templates[i].Order < c.templates[j].Order
	})
	return c, nil
}

// All возвращает копию набора в порядке чеклиста.
func (c *Catalog) All() []Template {
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

func (c *Catalog) Len() int {
	return len(c.templates)
}

func (c *Catalog) Lookup(factorID, stage string) (Template, bool) {
	t, ok := c.byKey[factorID+":"+stage]
	return t, ok
}

// ByFactor возвращает все компоненты фактора (фактор может жить в нескольких стадиях).
func (c *Catalog) ByFactor(factorID string) []Template {
	src := c.byFactor[factorID]
	out := make([]Template, len(src))
	copy(out, src)
	return out
}

func (c *Catalog) KnownFactor(factorID string) bool {
	_, ok := c.byFactor[factorID]
	return ok
}

func validSlug(s string) bool {
	if s == "" || strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") || strings.Contains(s, "--") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// Default - встроенный методологический набор из 12 компонентов.
// Посев самого каталога вне зоны ответственности этого сервиса.
func Default() *Catalog {
	c, err := New([]Template{
		{FactorID: "stakeholder-map", Stage: "discovery", Order: 1, Text: "Map stakeholders and their influence"},
		{FactorID: "problem-statement", Stage: "discovery", Order: 2, Text: "Write the problem statement"},
		{FactorID: "success-metrics", Stage: "discovery", Order: 3, Text: "Agree on measurable success metrics"},
		{FactorID: "scope-baseline", Stage: "planning", Order: 4, Text: "Baseline the project scope"},
		{FactorID: "risk-register", Stage: "planning", Order: 5, Text: "Open the risk register"},
		{FactorID: "resource-plan", Stage: "planning", Order: 6, Text: "Plan people and budget"},
		{FactorID: "status-cadence", Stage: "execution", Order: 7, Text: "Set the status reporting cadence"},
		{FactorID: "change-control", Stage: "execution", Order: 8, Text: "Establish change control"},
		{FactorID: "quality-gates", Stage: "execution", Order: 9, Text: "Define quality gates"},
		{FactorID: "handover-plan", Stage: "closure", Order: 10, Text: "Prepare the handover plan"},
		{FactorID: "retrospective", Stage: "closure", Order: 11, Text: "Run the project retrospective"},
		{FactorID: "benefits-review", Stage: "closure", Order: 12, Text: "Schedule the benefits review"},
	})
	if err != nil {
		panic(err)
	}
	return c
}
