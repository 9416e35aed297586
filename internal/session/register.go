package session

import (
	"context"
	"fmt"
	"strings"

	"go-portal-harvester/internal/browser"
	"go-portal-harvester/internal/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// Identity is a throwaway account used to sign up on portals that hide
// listings behind registration.
type Identity struct {
	Name     string
	Email    string
	Password string
}

func (m *Manager) newIdentity() Identity {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return Identity{
		Name:     "Harvest " + strings.ToUpper(id[:6]),
		Email:    fmt.Sprintf("harvest.%d.%s@%s", m.now().Unix(), id[:8], m.opts.Registration.EmailDomain),
		Password: "Hv!" + id[:16],
	}
}

// register fills the sign-up form on the current page. The submitted
// account is treated as logged in without verifying the landing page.
func (m *Manager) register(ctx context.Context, r browser.Renderer, html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	present := func(sel string) bool {
		return sel != "" && doc.Find(sel).Length() > 0
	}

	m.mu.Lock()
	ident := m.newIdentity()
	m.mu.Unlock()

	if present(m.opts.Registration.NameSelector) {
		if err := r.Type(ctx, m.opts.Registration.NameSelector, ident.Name); err != nil {
			return fmt.Errorf("fill name: %w", err)
		}
	}
	if err := r.Type(ctx, m.opts.EmailSelector, ident.Email); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	if err := r.Type(ctx, m.opts.PasswordSelector, ident.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if present(m.opts.Registration.ConfirmPasswordSelect) {
		if err := r.Type(ctx, m.opts.Registration.ConfirmPasswordSelect, ident.Password); err != nil {
			return fmt.Errorf("fill password confirmation: %w", err)
		}
	}
	if err := r.Click(ctx, m.opts.SubmitSelector); err != nil {
		return fmt.Errorf("submit registration: %w", err)
	}

	m.log.Info("Registered new portal account", logger.String("email", ident.Email))
	return nil
}
