package campaign

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/dormant-leads/internal/domain"
)

// ControlVariant names the template's base body.
const ControlVariant = "control"

// Renderer renders Liquid message templates with a parse cache.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the message filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, def string) interface{} {
		if value == nil {
			return def
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return def
		}
		return value
	})

	// {{ estimated_value | currency }}
	engine.RegisterFilter("currency", func(value interface{}) string {
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case int:
			f = float64(v)
		case nil:
			return ""
		default:
			if _, err := fmt.Sscanf(fmt.Sprintf("%v", v), "%g", &f); err != nil {
				return fmt.Sprintf("%v", v)
			}
		}
		return fmt.Sprintf("€%.2f", f)
	})

	return &Renderer{engine: engine}
}

// Validate parses the body, subject and every variant.
func (r *Renderer) Validate(t *domain.MessageTemplate) error {
	sources := []string{t.Subject, t.Body}
	for _, v := range t.Variants {
		sources = append(sources, v)
	}
	for _, src := range sources {
		if _, err := r.engine.ParseString(src); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
		}
	}
	return nil
}

// Render returns the subject and body for variant. Unknown variants render
// the control body.
func (r *Renderer) Render(t *domain.MessageTemplate, variant string, vars map[string]interface{}) (string, string, error) {
	body := t.Body
	if v, ok := t.Variants[variant]; ok {
		body = v
	}
	subject, err := r.render(t.ID+":subject", t.Subject, vars)
	if err != nil {
		return "", "", err
	}
	out, err := r.render(t.ID+":"+variant, body, vars)
	if err != nil {
		return "", "", err
	}
	return subject, out, nil
}

func (r *Renderer) render(key, src string, vars map[string]interface{}) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	if cached, ok := r.cache.Load(key); ok {
		return cached.(*liquid.Template).RenderString(vars)
	}
	tpl, err := r.engine.ParseString(src)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	r.cache.Store(key, tpl)
	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// ChooseVariant picks a variant for a line deterministically, so the same
// line always sees the same variant of one campaign.
func ChooseVariant(t *domain.MessageTemplate, hashedLine, campaignID string) string {
	if len(t.Variants) == 0 {
		return ControlVariant
	}
	names := make([]string, 0, len(t.Variants)+1)
	names = append(names, ControlVariant)
	keys := make([]string, 0, len(t.Variants))
	for k := range t.Variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	names = append(names, keys...)

	sum := sha256.Sum256([]byte(hashedLine + campaignID))
	idx := binary.BigEndian.Uint64(sum[:8]) % uint64(len(names))
	return names[idx]
}
