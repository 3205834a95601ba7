// Package usecase contains the application services that drive bindings,
// transactions, and worker orchestration over the domain ports.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// bulk port ranges above this size are rejected up-front
const maxPortRangeSpan = 500

// ServerService manages server instances.
type ServerService struct {
	Servers  domain.ServerRepo
	Bindings domain.BindingRepo
}

// NewServerService constructs a ServerService.
func NewServerService(servers domain.ServerRepo, bindings domain.BindingRepo) ServerService {
	return ServerService{Servers: servers, Bindings: bindings}
}

// CreateServerInput is the payload for creating one server instance.
type CreateServerInput struct {
	Port               int
	BaseURL            string
	Description        string
	TimeoutSeconds     int
	Retries            int
	WaitBetweenRetries int
	MaxRequestsQueued  int
	IsActive           *bool
	Parameters         map[string]any
	DeviceID           string
	Notes              string
}

// Create registers a new server instance.
func (s ServerService) Create(ctx context.Context, in CreateServerInput) (domain.ServerInstance, error) {
	if in.Port <= 0 {
		return domain.ServerInstance{}, domain.ValidationError("server_invalid_port", "port must be positive")
	}
	if strings.TrimSpace(in.BaseURL) == "" {
		return domain.ServerInstance{}, domain.ValidationError("server_base_url_required", "base_url is required")
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return s.Servers.Create(ctx, domain.ServerInstance{
		Port:               in.Port,
		BaseURL:            strings.TrimRight(in.BaseURL, "/"),
		Description:        in.Description,
		TimeoutSeconds:     in.TimeoutSeconds,
		Retries:            in.Retries,
		WaitBetweenRetries: in.WaitBetweenRetries,
		MaxRequestsQueued:  in.MaxRequestsQueued,
		IsActive:           active,
		Parameters:         in.Parameters,
		DeviceID:           in.DeviceID,
		Notes:              in.Notes,
	})
}

// Get loads a server by id.
func (s ServerService) Get(ctx context.Context, id int64) (domain.ServerInstance, error) {
	return s.Servers.Get(ctx, id)
}

// List returns servers matching the filter.
func (s ServerService) List(ctx context.Context, f domain.ServerFilter) ([]domain.ServerInstance, error) {
	return s.Servers.List(ctx, f)
}

// Update applies a partial update.
func (s ServerService) Update(ctx context.Context, id int64, p domain.ServerPatch) (domain.ServerInstance, error) {
	if p.Port != nil && *p.Port <= 0 {
		return domain.ServerInstance{}, domain.ValidationError("server_invalid_port", "port must be positive")
	}
	if p.BaseURL != nil {
		trimmed := strings.TrimRight(strings.TrimSpace(*p.BaseURL), "/")
		if trimmed == "" {
			return domain.ServerInstance{}, domain.ValidationError("server_base_url_required", "base_url is required")
		}
		p.BaseURL = &trimmed
	}
	return s.Servers.Update(ctx, id, p)
}

// SetActive toggles the is_active flag.
func (s ServerService) SetActive(ctx context.Context, id int64, active bool) (domain.ServerInstance, error) {
	return s.Servers.Update(ctx, id, domain.ServerPatch{IsActive: &active})
}

// Delete removes a server unless an active binding still references it.
func (s ServerService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Servers.Get(ctx, id); err != nil {
		return err
	}
	_, err := s.Bindings.GetActiveByServer(ctx, id)
	switch {
	case err == nil:
		return domain.ValidationError(
			"server_has_active_binding", "server %d still has an active binding", id)
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}
	return s.Servers.Delete(ctx, id)
}

// BulkServersInput creates one server per port in [StartPort, EndPort].
// BaseURLs are derived as "<Host>:<port>".
type BulkServersInput struct {
	StartPort          int
	EndPort            int
	Host               string
	Description        string
	TimeoutSeconds     int
	Retries            int
	WaitBetweenRetries int
	MaxRequestsQueued  int
	IsActive           *bool
	StopOnFirstError   bool
}

// BulkItemResult is the per-item verdict of a bulk operation.
type BulkItemResult struct {
	Key    string `json:"key"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	ID     int64  `json:"id,omitempty"`
}

// BulkResult summarizes a bulk operation.
type BulkResult struct {
	Items       []BulkItemResult `json:"items"`
	Created     int              `json:"created"`
	WouldCreate int              `json:"would_create"`
	Failed      int              `json:"failed"`
	DryRun      bool             `json:"dry_run"`
}

func (r *BulkResult) record(item BulkItemResult) {
	switch item.Status {
	case "created":
		r.Created++
	case "would_create":
		r.WouldCreate++
	default:
		r.Failed++
	}
	r.Items = append(r.Items, item)
}

// BulkCreate creates (or simulates creating) one server per port in the range.
func (s ServerService) BulkCreate(ctx context.Context, in BulkServersInput, dryRun bool) (BulkResult, error) {
	if in.StartPort <= 0 || in.EndPort < in.StartPort {
		return BulkResult{}, domain.ValidationError("server_invalid_port_range", "invalid port range")
	}
	if in.EndPort-in.StartPort > maxPortRangeSpan {
		return BulkResult{}, domain.ValidationError(
			"server_port_range_too_large", "port range spans more than %d ports", maxPortRangeSpan)
	}
	if strings.TrimSpace(in.Host) == "" {
		return BulkResult{}, domain.ValidationError("server_host_required", "host is required")
	}
	host := strings.TrimRight(in.Host, "/")

	res := BulkResult{DryRun: dryRun, Items: make([]BulkItemResult, 0, in.EndPort-in.StartPort+1)}
	for port := in.StartPort; port <= in.EndPort; port++ {
		key := fmt.Sprintf("port:%d", port)
		if _, err := s.Servers.GetByPort(ctx, port); err == nil {
			res.record(BulkItemResult{Key: key, Status: "failed", Reason: "port_already_registered"})
			if in.StopOnFirstError {
				return res, nil
			}
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return res, err
		}
		if dryRun {
			res.record(BulkItemResult{Key: key, Status: "would_create"})
			continue
		}
		created, err := s.Create(ctx, CreateServerInput{
			Port:               port,
			BaseURL:            fmt.Sprintf("%s:%d", host, port),
			Description:        in.Description,
			TimeoutSeconds:     in.TimeoutSeconds,
			Retries:            in.Retries,
			WaitBetweenRetries: in.WaitBetweenRetries,
			MaxRequestsQueued:  in.MaxRequestsQueued,
			IsActive:           in.IsActive,
		})
		if err != nil {
			res.record(BulkItemResult{Key: key, Status: "failed", Reason: domain.ErrorCode(err)})
			if in.StopOnFirstError {
				return res, nil
			}
			continue
		}
		res.record(BulkItemResult{Key: key, Status: "created", ID: created.ID})
	}
	return res, nil
}
