package dojo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	dd "github.com/truemilk/go-defectdojo/defectdojo"

	"github.com/z4ce/sonar2dojo/internal/config"
	"github.com/z4ce/sonar2dojo/internal/logging"
	"github.com/z4ce/sonar2dojo/internal/transport"
)

// listPageSize is the page size used when walking DefectDojo lists
const listPageSize = 100

// Client talks to the DefectDojo v2 API through go-defectdojo. Failed calls
// surface as *transport.APIError whenever the server answered.
type Client struct {
	api    *dd.Client
	status *transport.StatusTransport
	log    *logging.Logger
}

// New creates a new DefectDojo API client
func New(cfg *config.Config, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Discard()
	}
	status := &transport.StatusTransport{Debug: transport.Debugger{Log: log}}
	httpClient := transport.NewHTTPClient(cfg.HTTPTimeout)
	httpClient.Transport = status

	return &Client{
		api:    dd.NewDojoClient(strings.TrimRight(cfg.DojoURL, "/"), cfg.DojoToken, httpClient),
		status: status,
		log:    log,
	}
}

// call runs one library operation and maps its failure onto an APIError
func (c *Client) call(op string, fn func(ctx context.Context) error) error {
	c.status.Reset()
	err := fn(context.Background())
	if err == nil {
		return nil
	}

	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if _, last := c.status.Last(); last != nil {
		return last
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// FindProduct looks a product up by exact name. It returns nil when no
// product carries that name.
func (c *Client) FindProduct(name string) (*Product, error) {
	for offset := 0; ; offset += listPageSize {
		var page *dd.Products
		err := c.call("list products", func(ctx context.Context) error {
			var err error
			page, err = c.api.Products.List(ctx, &dd.ProductsOptions{Limit: listPageSize, Offset: offset})
			return err
		})
		if err != nil {
			return nil, err
		}
		if page == nil || page.Results == nil {
			return nil, nil
		}

		for _, p := range *page.Results {
			if deref(p.Name) == name {
				return productFrom(&p), nil
			}
		}
		if page.Next == nil || len(*page.Results) < listPageSize {
			return nil, nil
		}
	}
}

// CreateProduct creates a new product
func (c *Client) CreateProduct(product *Product) (*Product, error) {
	var created *dd.Product
	err := c.call("create product", func(ctx context.Context) error {
		var err error
		created, err = c.api.Products.Create(ctx, &dd.Product{
			Name:        ptr(product.Name),
			Description: ptr(product.Description),
			ProdType:    ptr(product.ProdType),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return productFrom(created), nil
}

// FindEngagement looks up an engagement of a product by exact name
func (c *Client) FindEngagement(productID int, name string) (*Engagement, error) {
	for offset := 0; ; offset += listPageSize {
		var page *dd.Engagements
		err := c.call("list engagements", func(ctx context.Context) error {
			var err error
			page, err = c.api.Engagements.List(ctx, &dd.EngagementsOptions{Limit: listPageSize, Offset: offset})
			return err
		})
		if err != nil {
			return nil, err
		}
		if page == nil || page.Results == nil {
			return nil, nil
		}

		for _, e := range *page.Results {
			if deref(e.Product) == productID && deref(e.Name) == name {
				return engagementFrom(&e), nil
			}
		}
		if page.Next == nil || len(*page.Results) < listPageSize {
			return nil, nil
		}
	}
}

// CreateEngagement creates a new engagement
func (c *Client) CreateEngagement(engagement *Engagement) (*Engagement, error) {
	var created *dd.Engagement
	err := c.call("create engagement", func(ctx context.Context) error {
		var err error
		created, err = c.api.Engagements.Create(ctx, &dd.Engagement{
			Name:           ptr(engagement.Name),
			Product:        ptr(engagement.Product),
			Status:         ptr(engagement.Status),
			TargetStart:    ptr(engagement.TargetStart),
			TargetEnd:      ptr(engagement.TargetEnd),
			EngagementType: ptr(engagement.EngagementType),
			Description:    ptr(engagement.Description),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return engagementFrom(created), nil
}

// DeleteEngagement deletes an engagement together with its tests and findings
func (c *Client) DeleteEngagement(id int) error {
	err := c.call(fmt.Sprintf("delete engagement %d", id), func(ctx context.Context) error {
		_, err := c.api.Engagements.Delete(ctx, id)
		return err
	})
	// DefectDojo answers 204 without a body, which the library may fail to decode
	if status, _ := c.status.Last(); err != nil && status == http.StatusNoContent {
		return nil
	}
	return err
}

// CreateTest creates a new test inside an engagement
func (c *Client) CreateTest(test *Test) (*Test, error) {
	var created *dd.Test
	err := c.call("create test", func(ctx context.Context) error {
		var err error
		created, err = c.api.Tests.Create(ctx, &dd.Test{
			Title:       ptr(test.Title),
			Engagement:  ptr(test.Engagement),
			TestType:    ptr(test.TestType),
			TargetStart: ptr(test.TargetStart),
			TargetEnd:   ptr(test.TargetEnd),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Test{
		ID:          deref(created.Id),
		Title:       deref(created.Title),
		Engagement:  deref(created.Engagement),
		TestType:    deref(created.TestType),
		TargetStart: deref(created.TargetStart),
		TargetEnd:   deref(created.TargetEnd),
	}, nil
}

// CreateFinding uploads a single finding
func (c *Client) CreateFinding(finding *Finding) (*Finding, error) {
	foundBy := append([]int(nil), finding.FoundBy...)
	var created *dd.Finding
	err := c.call("create finding", func(ctx context.Context) error {
		var err error
		created, err = c.api.Findings.Create(ctx, &dd.Finding{
			Title:             ptr(finding.Title),
			Severity:          ptr(finding.Severity),
			NumericalSeverity: ptr(finding.NumericalSeverity),
			Description:       ptr(finding.Description),
			Test:              ptr(finding.Test),
			FoundBy:           &foundBy,
			Active:            ptr(finding.Active),
			Verified:          ptr(finding.Verified),
			StaticFinding:     ptr(finding.StaticFinding),
			FilePath:          ptr(finding.FilePath),
			Line:              ptr(finding.Line),
			UniqueIdFromTool:  ptr(finding.UniqueIDFromTool),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	out := *finding
	out.ID = deref(created.Id)
	return &out, nil
}

func productFrom(p *dd.Product) *Product {
	return &Product{
		ID:          deref(p.Id),
		Name:        deref(p.Name),
		Description: deref(p.Description),
		ProdType:    deref(p.ProdType),
	}
}

func engagementFrom(e *dd.Engagement) *Engagement {
	return &Engagement{
		ID:             deref(e.Id),
		Name:           deref(e.Name),
		Product:        deref(e.Product),
		Status:         deref(e.Status),
		TargetStart:    deref(e.TargetStart),
		TargetEnd:      deref(e.TargetEnd),
		EngagementType: deref(e.EngagementType),
		Description:    deref(e.Description),
	}
}

func ptr[T any](v T) *T {
	return &v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
