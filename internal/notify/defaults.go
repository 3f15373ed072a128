package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
)

// Defaults fills the optional Params fields. One value is built at startup
// (from config) and applied once per Send.
type Defaults struct {
	Category domain.Category
	Priority domain.Priority
	Channels []domain.Channel
	// BaseURL makes relative action links absolute in email bodies.
	BaseURL string
}

// DefaultDefaults returns SYSTEM / NORMAL / {IN_APP, EMAIL}.
func DefaultDefaults() Defaults {
	return Defaults{
		Category: domain.CategorySystem,
		Priority: domain.PriorityNormal,
		Channels: domain.DefaultChannels(),
	}
}

// normalize fills zero fields from DefaultDefaults and validates the rest.
func (d Defaults) normalize() (Defaults, error) {
	base := DefaultDefaults()
	if d.Category == "" {
		d.Category = base.Category
	}
	if d.Priority == "" {
		d.Priority = base.Priority
	}
	if len(d.Channels) == 0 {
		d.Channels = base.Channels
	}
	if !d.Category.Valid() {
		return d, fmt.Errorf("default category %q: %w", d.Category, ErrInvalidCategory)
	}
	if !d.Priority.Valid() {
		return d, fmt.Errorf("default priority %q: %w", d.Priority, ErrInvalidPriority)
	}
	for _, ch := range d.Channels {
		if !ch.Valid() {
			return d, fmt.Errorf("default channel %q: %w", ch, ErrInvalidChannel)
		}
	}
	d.Channels = append([]domain.Channel(nil), d.Channels...)
	d.BaseURL = strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")
	if d.BaseURL != "" {
		if _, err := url.Parse(d.BaseURL); err != nil {
			return d, fmt.Errorf("base url: %w", err)
		}
	}
	return d, nil
}

// apply returns p with defaults filled in, or a validation error.
func (d Defaults) apply(p Params) (Params, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return p, ErrMissingUser
	}
	if strings.TrimSpace(p.Type) == "" {
		return p, ErrMissingType
	}
	if p.Category == "" {
		p.Category = d.Category
	}
	if p.Priority == "" {
		p.Priority = d.Priority
	}
	if len(p.Channels) == 0 {
		p.Channels = d.Channels
	}
	if !p.Category.Valid() {
		return p, fmt.Errorf("category %q: %w", p.Category, ErrInvalidCategory)
	}
	if !p.Priority.Valid() {
		return p, fmt.Errorf("priority %q: %w", p.Priority, ErrInvalidPriority)
	}
	for _, ch := range p.Channels {
		if !ch.Valid() {
			return p, fmt.Errorf("channel %q: %w", ch, ErrInvalidChannel)
		}
	}
	return p, nil
}

// absoluteURL resolves link against BaseURL when link is relative.
func (d Defaults) absoluteURL(link string) string {
	link = strings.TrimSpace(link)
	if link == "" || d.BaseURL == "" {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil || ref.IsAbs() {
		return link
	}
	base, err := url.Parse(d.BaseURL + "/")
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}
