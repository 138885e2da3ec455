package designs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/custshop/custshop/internal/catalog"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/shared"
)

// ProductLookup resolves products for placement validation.
type ProductLookup interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

// ImageStore persists artwork objects.
type ImageStore interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
	DeleteObject(ctx context.Context, key string) error
	URL(key string) string
}

// Service implements the design workflow.
type Service struct {
	repo     Repository
	products ProductLookup
	images   ImageStore
	audit    shared.AuditRecorder
	logger   *slog.Logger
}

// NewService constructs the design service.
func NewService(repo Repository, products ProductLookup, images ImageStore, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, products: products, images: images, audit: audit, logger: logger}
}

func (s *Service) present(d Design) Design {
	if d.ImageKey != "" && s.images != nil {
		d.ImageURL = s.images.URL(d.ImageKey)
	}
	return d
}

func (s *Service) presentPage(items []Design, page shared.Pagination, total int) shared.Page[Design] {
	for i := range items {
		items[i] = s.present(items[i])
	}
	return shared.Page[Design]{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}
}

// Create starts a draft design for an active product.
func (s *Service) Create(ctx context.Context, ownerID int64, in CreateInput) (Design, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return Design{}, fmt.Errorf("%w: title required", httpx.ErrValidation)
	}
	product, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return Design{}, fmt.Errorf("%w: unknown product", httpx.ErrValidation)
		}
		return Design{}, err
	}
	if !product.IsActive {
		return Design{}, fmt.Errorf("%w: product is not available", httpx.ErrValidation)
	}
	if err := ValidatePlacement(product.Kind, in.Placement); err != nil {
		return Design{}, err
	}
	d, err := s.repo.Create(ctx, ownerID, in)
	if err != nil {
		return Design{}, err
	}
	return s.present(d), nil
}

// Get returns a design by id.
func (s *Service) Get(ctx context.Context, id int64) (Design, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Design{}, err
	}
	return s.present(d), nil
}

// GetVisible returns a design the viewer may see: their own, any published design, or
// any design for moderators.
func (s *Service) GetVisible(ctx context.Context, viewer *shared.Principal, id int64, moderator bool) (Design, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return Design{}, err
	}
	if d.Status == StatusPublished || moderator || (viewer != nil && viewer.UserID == d.OwnerID) {
		return d, nil
	}
	return Design{}, httpx.ErrNotFound
}

func (s *Service) owned(ctx context.Context, ownerID, id int64) (Design, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Design{}, err
	}
	if d.OwnerID != ownerID {
		return Design{}, httpx.ErrNotFound
	}
	return d, nil
}

// UploadImage stores artwork for an editable design owned by ownerID. The previous
// object, if any, is removed.
func (s *Service) UploadImage(ctx context.Context, ownerID, id int64, contentType string, body io.Reader) (Design, error) {
	d, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return Design{}, err
	}
	if !d.Status.Editable() {
		return Design{}, fmt.Errorf("%w: design is %s", httpx.ErrConflict, d.Status)
	}
	data, err := io.ReadAll(io.LimitReader(body, MaxImageBytes+1))
	if err != nil {
		return Design{}, fmt.Errorf("%w: read image: %v", httpx.ErrValidation, err)
	}
	if len(data) > MaxImageBytes {
		return Design{}, fmt.Errorf("%w: image exceeds %d bytes", httpx.ErrValidation, MaxImageBytes)
	}
	mediaType, ext, err := sniffImage(contentType, data)
	if err != nil {
		return Design{}, err
	}
	if s.images == nil {
		return Design{}, errors.New("designs: image storage not configured")
	}
	key := fmt.Sprintf("designs/%d/%s%s", ownerID, uuid.NewString(), ext)
	if err := s.images.PutObject(ctx, key, bytes.NewReader(data), mediaType); err != nil {
		return Design{}, err
	}
	if err := s.repo.SetImage(ctx, id, key); err != nil {
		_ = s.images.DeleteObject(ctx, key)
		return Design{}, err
	}
	if d.ImageKey != "" {
		if err := s.images.DeleteObject(ctx, d.ImageKey); err != nil {
			s.logger.Warn("delete replaced design image", slog.String("key", d.ImageKey), slog.Any("error", err))
		}
	}
	d.ImageKey = key
	return s.present(d), nil
}

func (s *Service) transition(ctx context.Context, actorID int64, d Design, to Status, note string) (Design, error) {
	if !CanTransition(d.Status, to) {
		return Design{}, fmt.Errorf("%w: cannot move design from %s to %s", httpx.ErrConflict, d.Status, to)
	}
	updated, err := s.repo.Transition(ctx, d.ID, d.Status, to, note)
	if err != nil {
		if errors.Is(err, httpx.ErrConflict) {
			return Design{}, fmt.Errorf("%w: design changed concurrently", httpx.ErrConflict)
		}
		return Design{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "design." + string(to),
		Entity:   "design",
		EntityID: strconv.FormatInt(d.ID, 10),
		Meta:     map[string]any{"from": string(d.Status), "note": note},
	})
	return s.present(updated), nil
}

// Submit sends an owner's draft or rejected design with artwork to moderation.
func (s *Service) Submit(ctx context.Context, ownerID, id int64) (Design, error) {
	d, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return Design{}, err
	}
	if d.ImageKey == "" && d.Status.Editable() {
		return Design{}, fmt.Errorf("%w: upload artwork before submitting", httpx.ErrValidation)
	}
	return s.transition(ctx, ownerID, d, StatusPending, "")
}

// Approve accepts a pending design.
func (s *Service) Approve(ctx context.Context, moderatorID, id int64) (Design, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Design{}, err
	}
	return s.transition(ctx, moderatorID, d, StatusApproved, "")
}

// Reject returns a pending design to its owner with a note.
func (s *Service) Reject(ctx context.Context, moderatorID, id int64, note string) (Design, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return Design{}, fmt.Errorf("%w: rejection note required", httpx.ErrValidation)
	}
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Design{}, err
	}
	return s.transition(ctx, moderatorID, d, StatusRejected, note)
}

// Publish makes an owner's approved design public.
func (s *Service) Publish(ctx context.Context, ownerID, id int64) (Design, error) {
	d, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return Design{}, err
	}
	return s.transition(ctx, ownerID, d, StatusPublished, d.ModerationNote)
}

// ListMine lists designs owned by ownerID.
func (s *Service) ListMine(ctx context.Context, ownerID int64, page, perPage int) (shared.Page[Design], error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.ListByOwner(ctx, ownerID, p.PerPage, p.Offset())
	if err != nil {
		return shared.Page[Design]{}, err
	}
	return s.presentPage(items, p, total), nil
}

// ListPublished lists public designs.
func (s *Service) ListPublished(ctx context.Context, page, perPage int) (shared.Page[Design], error) {
	return s.listStatus(ctx, StatusPublished, page, perPage)
}

// ListPending lists designs awaiting moderation.
func (s *Service) ListPending(ctx context.Context, page, perPage int) (shared.Page[Design], error) {
	return s.listStatus(ctx, StatusPending, page, perPage)
}

func (s *Service) listStatus(ctx context.Context, status Status, page, perPage int) (shared.Page[Design], error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.ListByStatus(ctx, status, p.PerPage, p.Offset())
	if err != nil {
		return shared.Page[Design]{}, err
	}
	return s.presentPage(items, p, total), nil
}

// Orderable reports whether userID may buy productID printed with design id: the design
// must be for that product and either published or the user's own approved design.
func (s *Service) Orderable(ctx context.Context, userID, productID, id int64) error {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return fmt.Errorf("%w: unknown design", httpx.ErrValidation)
		}
		return err
	}
	if d.ProductID != productID {
		return fmt.Errorf("%w: design belongs to another product", httpx.ErrValidation)
	}
	switch {
	case d.Status == StatusPublished:
		return nil
	case d.Status == StatusApproved && d.OwnerID == userID:
		return nil
	default:
		return fmt.Errorf("%w: design is not available for orders", httpx.ErrValidation)
	}
}
