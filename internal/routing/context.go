// ABOUTME: Domain-shaped context records sent with every Agent Service request.
// ABOUTME: One variant per domain, built by NewContext from the domain and reply language.

package routing

import (
	"fmt"

	"github.com/2389/ksasa/internal/lang"
)

// Context is the per-domain context payload. The set of implementations is closed.
type Context interface {
	Domain() Domain
	isContext()
}

// EducationContext asks for lesson material.
type EducationContext struct {
	Language        lang.Code `json:"language"`
	Grade           int       `json:"grade"`
	Subject         string    `json:"subject"`
	DurationMinutes int       `json:"duration_minutes"`
}

// HealthContext asks for general health guidance.
type HealthContext struct {
	Language lang.Code `json:"language"`
	Category string    `json:"category"`
	Urgency  string    `json:"urgency"`
}

// GovernanceContext asks for public-service guidance.
type GovernanceContext struct {
	Language   lang.Code `json:"language"`
	Department string    `json:"department"`
}

func (EducationContext) Domain() Domain  { return Education }
func (HealthContext) Domain() Domain     { return Health }
func (GovernanceContext) Domain() Domain { return Governance }

func (EducationContext) isContext()  {}
func (HealthContext) isContext()     {}
func (GovernanceContext) isContext() {}

const (
	defaultGrade    = 4
	defaultDuration = 30
)

// NewContext builds the context variant for domain d in reply language code.
func NewContext(d Domain, code lang.Code) (Context, error) {
	switch d {
	case Education:
		return EducationContext{
			Language:        code,
			Grade:           defaultGrade,
			Subject:         Subject(code),
			DurationMinutes: defaultDuration,
		}, nil
	case Health:
		return HealthContext{Language: code, Category: "general", Urgency: "normal"}, nil
	case Governance:
		return GovernanceContext{Language: code, Department: "general"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, d)
	}
}

// Subject is the localized name of the default lesson subject (mathematics).
func Subject(code lang.Code) string {
	switch code {
	case lang.Swahili:
		return "Hisabati"
	case lang.Luo:
		return "Kisomo"
	case lang.Gikuyu:
		return "Mathi"
	default:
		return "Math"
	}
}
