package commands

import (
	"fmt"
	"time"

	"github.com/z4ce/sonar2dojo/internal/config"
	"github.com/z4ce/sonar2dojo/internal/dojo"
	"github.com/z4ce/sonar2dojo/internal/logging"
)

// engagementDays is how many calendar days a new engagement stays open
const engagementDays = 7

// Provisioner makes sure the product, engagement and test a project's
// findings go into exist in DefectDojo
type Provisioner struct {
	client TargetInterface
	cfg    *config.Config
	log    *logging.Logger

	// Now is the clock used for names and target windows
	Now func() time.Time
}

// NewProvisioner creates a new provisioner
func NewProvisioner(client TargetInterface, cfg *config.Config, log *logging.Logger) *Provisioner {
	if log == nil {
		log = logging.Discard()
	}
	return &Provisioner{
		client: client,
		cfg:    cfg,
		log:    log,
		Now:    time.Now,
	}
}

// EnsureProduct returns the product called name, creating it when the
// lookup finds nothing
func (p *Provisioner) EnsureProduct(name string) (*dojo.Product, error) {
	product, err := p.client.FindProduct(name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up product %s: %w", name, err)
	}
	if product != nil {
		p.log.Debug("Found existing product %s (ID: %d)", name, product.ID)
		return product, nil
	}

	product, err = p.client.CreateProduct(&dojo.Product{
		Name:        name,
		Description: fmt.Sprintf("Imported automatically from SonarCloud (%s)", name),
		ProdType:    p.cfg.ProductType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create product %s: %w", name, err)
	}
	p.log.Info("Created product %s (ID: %d)", name, product.ID)
	return product, nil
}

// EngagementName returns the name a new engagement gets at the given time.
// With reuse enabled the name only depends on the date.
func (p *Provisioner) EngagementName(at time.Time) string {
	if p.cfg.ReuseEngagements {
		return "SonarCloud import - " + at.Format(dojo.DateLayout)
	}
	return "SonarCloud import - " + at.Format("150405")
}

// CreateEngagement creates a new engagement under the product. The boolean
// reports whether the engagement was created by this call; it is false only
// when engagement reuse is enabled and today's engagement already exists.
func (p *Provisioner) CreateEngagement(productID int, projectName string) (*dojo.Engagement, bool, error) {
	now := p.Now()
	name := p.EngagementName(now)

	if p.cfg.ReuseEngagements {
		existing, err := p.client.FindEngagement(productID, name)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up engagement %q: %w", name, err)
		}
		if existing != nil {
			p.log.Info("Reusing engagement %q for %s (ID: %d)", name, projectName, existing.ID)
			return existing, false, nil
		}
	}

	engagement, err := p.client.CreateEngagement(&dojo.Engagement{
		Name:           name,
		Product:        productID,
		Status:         dojo.EngagementStatusInProgress,
		TargetStart:    now.Format(dojo.DateLayout),
		TargetEnd:      now.AddDate(0, 0, engagementDays).Format(dojo.DateLayout),
		EngagementType: dojo.EngagementTypeCICD,
		Description:    fmt.Sprintf("Engagement created automatically from SonarCloud for %s", projectName),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create engagement for %s: %w", projectName, err)
	}
	p.log.Info("Created engagement for %s (ID: %d)", projectName, engagement.ID)
	return engagement, true, nil
}

// CreateTest creates a new test inside the engagement
func (p *Provisioner) CreateTest(engagementID int, projectName string) (*dojo.Test, error) {
	today := p.Now().Format(dojo.DateLayout)
	test, err := p.client.CreateTest(&dojo.Test{
		Title:       "SonarCloud analysis - " + projectName,
		Engagement:  engagementID,
		TestType:    p.cfg.TestType,
		TargetStart: today,
		TargetEnd:   today,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test for engagement %d: %w", engagementID, err)
	}
	p.log.Info("Created test for engagement %d (ID: %d)", engagementID, test.ID)
	return test, nil
}
