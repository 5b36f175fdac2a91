package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shortly/pkg/cache"
	"shortly/pkg/logging"
	"shortly/pkg/storage"
)

// insertRetries bounds how often Shorten regenerates after losing an
// insert race on an auto-generated code.
const insertRetries = 3

// LinkService owns link creation, reads, updates and soft deletion,
// enforcing ownership and quota invariants. The redirect hot path lives in
// Resolver.
type LinkService struct {
	links  storage.LinkStore
	users  storage.UserStore
	cache  cache.LookupCache
	gen    *CodeGenerator
	logger *logging.Logger
}

func NewLinkService(links storage.LinkStore, users storage.UserStore, lookup cache.LookupCache, gen *CodeGenerator, logger *logging.Logger) *LinkService {
	return &LinkService{
		links:  links,
		users:  users,
		cache:  lookup,
		gen:    gen,
		logger: logger,
	}
}

type ShortenRequest struct {
	OwnerID     uuid.UUID
	OriginalURL string
	CustomAlias *string
	Title       *string
	Password    *string
	ExpiresAt   *time.Time
}

type UpdateRequest struct {
	OriginalURL *string
	Title       *string
	ExpiresAt   *time.Time
	IsActive    *bool
}

type Page struct {
	Links      []*storage.Link
	Page       int
	Size       int
	Total      int64
	TotalPages int
}

// Shorten creates a link for the owner. The store's uniqueness constraint is
// authoritative for code collisions: a custom alias losing the insert race
// fails with ErrShortCodeTaken, an auto-generated code is retried with a
// fresh draw.
func (s *LinkService) Shorten(ctx context.Context, req ShortenRequest) (*storage.Link, error) {
	user, err := s.users.FindByID(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading user: %v", ErrUnavailable, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.CanCreateLink() {
		return nil, fmt.Errorf("%w (%d/%d)", ErrLimitExceeded, user.LinksCreated, user.LinksLimit)
	}

	if !ValidURL(req.OriginalURL) {
		return nil, ErrInvalidURL
	}

	var passwordHash *string
	if req.Password != nil && *req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		h := string(hash)
		passwordHash = &h
	}

	link := &storage.Link{
		OriginalURL:  req.OriginalURL,
		OwnerID:      req.OwnerID,
		PasswordHash: passwordHash,
		Title:        req.Title,
		ExpiresAt:    req.ExpiresAt,
		IsActive:     true,
	}

	if req.CustomAlias != nil && *req.CustomAlias != "" {
		alias := *req.CustomAlias
		if !s.gen.ValidCustomAlias(alias) {
			return nil, ErrInvalidAlias
		}
		exists, err := s.links.ExistsByCode(ctx, alias)
		if err != nil {
			return nil, fmt.Errorf("%w: checking alias: %v", ErrUnavailable, err)
		}
		if exists {
			return nil, ErrShortCodeTaken
		}

		link.ShortCode = alias
		link.IsCustom = true
		if err := s.links.Insert(ctx, link); err != nil {
			if errors.Is(err, storage.ErrDuplicateCode) {
				return nil, ErrShortCodeTaken
			}
			return nil, fmt.Errorf("%w: inserting link: %v", ErrUnavailable, err)
		}
		s.logger.Info(ctx, "link created", "short_code", link.ShortCode, "custom", true)
		return link, nil
	}

	for attempt := 0; ; attempt++ {
		code, err := s.gen.GenerateUnique(ctx)
		if err != nil {
			return nil, err
		}
		link.ShortCode = code

		err = s.links.Insert(ctx, link)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrDuplicateCode) && attempt < insertRetries {
			s.logger.Warn(ctx, "generated code lost insert race, retrying", "short_code", code)
			continue
		}
		return nil, fmt.Errorf("%w: inserting link: %v", ErrUnavailable, err)
	}

	s.logger.Info(ctx, "link created", "short_code", link.ShortCode, "custom", false)
	return link, nil
}

func (s *LinkService) GetLink(ctx context.Context, code string, requester uuid.UUID) (*storage.Link, error) {
	link, err := s.ownedLink(ctx, code, requester)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// UpdateLink applies the non-nil patch fields. When the destination or
// active state changes, the cache entry is removed before returning so a
// stale destination is never served past this call.
func (s *LinkService) UpdateLink(ctx context.Context, code string, requester uuid.UUID, patch UpdateRequest) (*storage.Link, error) {
	link, err := s.ownedLink(ctx, code, requester)
	if err != nil {
		return nil, err
	}

	invalidate := false
	if patch.OriginalURL != nil {
		if !ValidURL(*patch.OriginalURL) {
			return nil, ErrInvalidURL
		}
		if *patch.OriginalURL != link.OriginalURL {
			invalidate = true
		}
		link.OriginalURL = *patch.OriginalURL
	}
	if patch.Title != nil {
		link.Title = patch.Title
	}
	if patch.ExpiresAt != nil {
		link.ExpiresAt = patch.ExpiresAt
	}
	if patch.IsActive != nil {
		if *patch.IsActive != link.IsActive {
			invalidate = true
		}
		link.IsActive = *patch.IsActive
	}

	if err := s.links.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("%w: updating link: %v", ErrUnavailable, err)
	}

	if invalidate {
		if err := s.cache.Delete(ctx, code); err != nil {
			s.logger.Error(ctx, "cache invalidation failed", "short_code", code, "error", err)
		}
	}

	s.logger.Info(ctx, "link updated", "short_code", code)
	return link, nil
}

// DeleteLink soft-deletes: the row stays so the code remains reserved, the
// cache entry is removed before returning, and the owner's quota is freed.
func (s *LinkService) DeleteLink(ctx context.Context, code string, requester uuid.UUID) error {
	if _, err := s.ownedLink(ctx, code, requester); err != nil {
		return err
	}

	if err := s.links.SoftDelete(ctx, code); err != nil {
		return fmt.Errorf("%w: deleting link: %v", ErrUnavailable, err)
	}

	if err := s.cache.Delete(ctx, code); err != nil {
		s.logger.Error(ctx, "cache invalidation failed", "short_code", code, "error", err)
	}

	s.logger.Info(ctx, "link deleted", "short_code", code)
	return nil
}

func (s *LinkService) ListLinks(ctx context.Context, owner uuid.UUID, page, size int, sortBy, order string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	links, err := s.links.FindByOwner(ctx, owner, page, size, sortBy, order)
	if err != nil {
		return nil, fmt.Errorf("%w: listing links: %v", ErrUnavailable, err)
	}
	total, err := s.links.CountByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: counting links: %v", ErrUnavailable, err)
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return &Page{
		Links:      links,
		Page:       page,
		Size:       size,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

func (s *LinkService) ownedLink(ctx context.Context, code string, requester uuid.UUID) (*storage.Link, error) {
	link, err := s.links.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: loading link: %v", ErrUnavailable, err)
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	if link.OwnerID != requester {
		return nil, ErrUnauthorized
	}
	return link, nil
}
