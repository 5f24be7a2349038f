package digitalocean

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/digitalocean/godo"

	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/provider"
)

// Provider manages droplets through the DigitalOcean API
type Provider struct {
	client *godo.Client
}

// New creates a provider authenticated with an API token
func New(token string) *Provider {
	return &Provider{client: godo.NewFromToken(token)}
}

// NewWithClient creates a provider around an existing godo client
func NewWithClient(client *godo.Client) *Provider {
	return &Provider{client: client}
}

// CreateInstance submits a droplet create request built from the spec template
func (p *Provider) CreateInstance(ctx context.Context, spec provider.Spec) (provider.Instance, error) {
	req := &godo.DropletCreateRequest{
		Name:    spec.Name,
		Region:  spec.Template.Region,
		Size:    spec.Template.Size,
		Image:   createImage(spec.Template.Image),
		SSHKeys: createSSHKeys(spec.Template.SSHKeys),
		Tags:    spec.Template.Tags,
	}

	droplet, _, err := p.client.Droplets.Create(ctx, req)
	if err != nil {
		return provider.Instance{}, fmt.Errorf("failed to create droplet %s: %w", spec.Name, err)
	}

	log.Logger.Debug().
		Int("droplet_id", droplet.ID).
		Str("name", droplet.Name).
		Str("region", spec.Template.Region).
		Msg("Droplet create request accepted")

	return toInstance(droplet), nil
}

// GetInstance fetches the current droplet status and public address
func (p *Provider) GetInstance(ctx context.Context, id string) (provider.Instance, error) {
	dropletID, err := parseID(id)
	if err != nil {
		return provider.Instance{}, err
	}

	droplet, _, err := p.client.Droplets.Get(ctx, dropletID)
	if err != nil {
		if isNotFound(err) {
			return provider.Instance{}, fmt.Errorf("droplet %s: %w", id, provider.ErrNotFound)
		}
		return provider.Instance{}, fmt.Errorf("failed to get droplet %s: %w", id, err)
	}

	return toInstance(droplet), nil
}

// DeleteInstance destroys a droplet
func (p *Provider) DeleteInstance(ctx context.Context, id string) error {
	dropletID, err := parseID(id)
	if err != nil {
		return err
	}

	if _, err := p.client.Droplets.Delete(ctx, dropletID); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("droplet %s: %w", id, provider.ErrNotFound)
		}
		return fmt.Errorf("failed to delete droplet %s: %w", id, err)
	}
	return nil
}

func toInstance(d *godo.Droplet) provider.Instance {
	inst := provider.Instance{
		ID:     strconv.Itoa(d.ID),
		Name:   d.Name,
		Status: d.Status,
	}
	if d.Networks != nil {
		if ip, err := d.PublicIPv4(); err == nil {
			inst.Address = ip
		}
	}
	return inst
}

func parseID(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, fmt.Errorf("invalid droplet id %q: %w", id, err)
	}
	return n, nil
}

// createImage accepts either a numeric image ID or a slug such as ubuntu-22-04-x64
func createImage(image string) godo.DropletCreateImage {
	if id, err := strconv.Atoi(image); err == nil {
		return godo.DropletCreateImage{ID: id}
	}
	return godo.DropletCreateImage{Slug: image}
}

// createSSHKeys accepts numeric key IDs or fingerprints
func createSSHKeys(keys []string) []godo.DropletCreateSSHKey {
	out := make([]godo.DropletCreateSSHKey, 0, len(keys))
	for _, k := range keys {
		if id, err := strconv.Atoi(k); err == nil {
			out = append(out, godo.DropletCreateSSHKey{ID: id})
			continue
		}
		out = append(out, godo.DropletCreateSSHKey{Fingerprint: k})
	}
	return out
}

func isNotFound(err error) bool {
	var errResp *godo.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode == http.StatusNotFound
	}
	return false
}
