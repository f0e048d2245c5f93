package notification

import (
	"math/rand"
	"sync"

	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/topmerg/rude-qa-bot/resources"
)

// Template categories, keys into resources/notifications.yml.
const (
	CategoryReadOnly               = "read_only"
	CategoryTextOnly               = "text_only"
	CategoryReadWrite              = "read_write"
	CategoryBanKick                = "ban_kick"
	CategoryTimeoutKick            = "timeout_kick"
	CategoryUnauthorizedPunishment = "unauthorized_punishment"
)

// Provider hands out chat reply texts drawn without replacement from a
// shuffled pool per category. A pool is reshuffled from its source list only
// once it runs dry, so repeats are impossible until every template of the
// category has been used.
type Provider struct {
	mu     sync.Mutex
	source map[string][]string
	pools  map[string][]string
}

// NewProvider loads the embedded template lists.
func NewProvider() (*Provider, error) {
	data, err := resources.FS.ReadFile("notifications.yml")
	if err != nil {
		return nil, errors.WithMessage(err, "cant read notification templates")
	}
	source := map[string][]string{}
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, errors.WithMessage(err, "cant unmarshal notification templates")
	}
	return &Provider{
		source: source,
		pools:  map[string][]string{},
	}, nil
}

func (p *Provider) draw(category string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pools[category]) == 0 {
		templates := p.source[category]
		if len(templates) == 0 {
			log.WithField("category", category).Error("no notification templates for category")
			return ""
		}
		pool := make([]string, len(templates))
		copy(pool, templates)
		rand.Shuffle(len(pool), func(i, j int) {
			pool[i], pool[j] = pool[j], pool[i]
		})
		p.pools[category] = pool
	}

	pool := p.pools[category]
	template := pool[len(pool)-1]
	p.pools[category] = pool[:len(pool)-1]
	return template
}

func (p *Provider) render(category string, args map[string]any) string {
	return tool.ExecTemplate(p.draw(category), args)
}

func (p *Provider) ReadOnly(firstName, durationText string) string {
	return p.render(CategoryReadOnly, map[string]any{
		"first_name":    firstName,
		"duration_text": durationText,
	})
}

func (p *Provider) TextOnly(firstName, durationText string) string {
	return p.render(CategoryTextOnly, map[string]any{
		"first_name":    firstName,
		"duration_text": durationText,
	})
}

func (p *Provider) ReadWrite(firstName string) string {
	return p.render(CategoryReadWrite, map[string]any{
		"first_name": firstName,
	})
}

func (p *Provider) BanKick(firstName, durationText string) string {
	return p.render(CategoryBanKick, map[string]any{
		"first_name":    firstName,
		"duration_text": durationText,
	})
}

func (p *Provider) TimeoutKick(firstName string) string {
	return p.render(CategoryTimeoutKick, map[string]any{
		"first_name": firstName,
	})
}

func (p *Provider) UnauthorizedPunishment(firstName, durationText string) string {
	return p.render(CategoryUnauthorizedPunishment, map[string]any{
		"first_name":    firstName,
		"duration_text": durationText,
	})
}
