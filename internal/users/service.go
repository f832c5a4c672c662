package users

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/permissions"
	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, userID int64) (User, error)
	EffectiveGrants(ctx context.Context, userID int64) ([]EffectiveGrant, error)
}

// CachePort fronts the effective-grants query.
type CachePort interface {
	Get(ctx context.Context, userID int64, load func(context.Context) ([]EffectiveGrant, error)) ([]EffectiveGrant, error)
}

// Service resolves actors for the session middleware and serves the grouped
// grant view.
type Service struct {
	repo   RepositoryPort
	cache  CachePort
	logger *slog.Logger
}

// NewService builds Service instance. cache may be nil to read through.
func NewService(repo RepositoryPort, cache CachePort, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Actor loads the authorization view of a user: identity flags plus every
// grant key the user holds through any role. Hidden grants are included;
// hiding affects UI visibility only, never enforcement.
func (s *Service) Actor(ctx context.Context, userID int64) (authz.Actor, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return authz.Actor{}, err
	}
	grants, err := s.effectiveGrants(ctx, user.ID)
	if err != nil {
		return authz.Actor{}, err
	}
	keys := make([]any, len(grants))
	for i, g := range grants {
		keys[i] = g.Key
	}
	return authz.NewActor(user.ID, user.TenantID, user.SuperAdmin, keys...), nil
}

// UserGrants returns the target user's grants partitioned into resource
// groups and visible/hidden key lists. A user may fetch only their own set
// unless they are a super admin.
func (s *Service) UserGrants(ctx context.Context, actor authz.Actor, userID int64) (UserGrants, error) {
	if actor.UserID != userID && !actor.SuperAdmin {
		return UserGrants{}, fmt.Errorf("users: grants of user %d are not yours to read: %w", userID, shared.ErrScope)
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return UserGrants{}, err
	}
	grants, err := s.effectiveGrants(ctx, user.ID)
	if err != nil {
		return UserGrants{}, err
	}

	byResource := make(map[string][]EffectiveGrant)
	result := UserGrants{UserID: user.ID}
	for _, g := range grants {
		byResource[g.Resource] = append(byResource[g.Resource], g)
		if g.Hidden {
			result.HiddenKey = append(result.HiddenKey, g.Key)
		} else {
			result.VisibleKey = append(result.VisibleKey, g.Key)
		}
	}
	for resource, members := range byResource {
		result.Groups = append(result.Groups, GrantGroup{
			Resource: resource,
			Label:    permissions.ResourceLabel(resource),
			Grants:   members,
		})
	}
	collator := collate.New(language.English, collate.IgnoreCase)
	sort.Slice(result.Groups, func(i, j int) bool {
		return collator.CompareString(result.Groups[i].Label, result.Groups[j].Label) < 0
	})
	return result, nil
}

func (s *Service) effectiveGrants(ctx context.Context, userID int64) ([]EffectiveGrant, error) {
	if s.cache == nil {
		return s.repo.EffectiveGrants(ctx, userID)
	}
	return s.cache.Get(ctx, userID, func(ctx context.Context) ([]EffectiveGrant, error) {
		return s.repo.EffectiveGrants(ctx, userID)
	})
}
